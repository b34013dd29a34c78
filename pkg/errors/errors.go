package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes different error types
type ErrorType string

const (
	// Network errors
	ErrorTypeNetwork ErrorType = "network"
	ErrorTypeTimeout ErrorType = "timeout"

	// Authentication errors
	ErrorTypeAuth           ErrorType = "auth"
	ErrorTypeUnauthorized   ErrorType = "unauthorized"
	ErrorTypeForbidden      ErrorType = "forbidden"
	ErrorTypeSessionExpired ErrorType = "session_expired"
	ErrorTypeSessionRevoked ErrorType = "session_revoked"
	ErrorTypeNotLoggedIn    ErrorType = "not_logged_in"

	// Validation errors
	ErrorTypeValidation ErrorType = "validation"

	// Server errors
	ErrorTypeServer    ErrorType = "server"
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeRateLimit ErrorType = "rate_limit"

	ErrorTypeUnknown ErrorType = "unknown"
)

// Messages surfaced to the user when a session ends without them asking.
const (
	MsgSecuritySessionRevoked = "Security session revoked. Please login again."
	MsgSessionExpired         = "Your session has expired. Please login again."
)

// CLIError represents a structured error with context
type CLIError struct {
	Type       ErrorType
	Message    string
	Cause      error
	Suggestion string
	StatusCode int
	RetryAfter int
}

// Error implements the error interface
func (e *CLIError) Error() string {
	return e.Message
}

// WithSuggestion adds a helpful suggestion to the error
func (e *CLIError) WithSuggestion(suggestion string) *CLIError {
	e.Suggestion = suggestion
	return e
}

// HasSuggestion returns true if the error has a suggestion
func (e *CLIError) HasSuggestion() bool {
	return e.Suggestion != ""
}

// Unwrap returns the underlying error
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// NewCLIError creates a new CLI error
func NewCLIError(errorType ErrorType, message string, cause error) *CLIError {
	return &CLIError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NetworkError creates a network error
func NetworkError(message string) *CLIError {
	err := NewCLIError(ErrorTypeNetwork, message, nil)
	err.Suggestion = "Check your internet connection and try again."
	return err
}

// TimeoutError creates a timeout error
func TimeoutError() *CLIError {
	err := NewCLIError(ErrorTypeTimeout, "Request timed out", nil)
	err.Suggestion = "The server is taking too long to respond. Try again in a moment."
	return err
}

// AuthError creates an authentication error
func AuthError(message string) *CLIError {
	err := NewCLIError(ErrorTypeAuth, message, nil)
	err.Suggestion = "Try logging in again with 'taskmgr auth login'"
	return err
}

// SessionExpiredError reports that the session could not be refreshed and
// was cleared.
func SessionExpiredError(statusCode int) *CLIError {
	err := NewCLIError(ErrorTypeSessionExpired, MsgSessionExpired, nil)
	err.StatusCode = statusCode
	err.Suggestion = "Run 'taskmgr auth login' to start a new session."
	return err
}

// SessionRevokedError reports that the client session was cleared because
// the server no longer accepts it. Every caller treats it the same way:
// the user is back in the unauthenticated state.
func SessionRevokedError(reason string, statusCode int) *CLIError {
	err := NewCLIError(ErrorTypeSessionRevoked, reason, nil)
	err.StatusCode = statusCode
	err.Suggestion = "Run 'taskmgr auth login' to start a new session."
	return err
}

// NotLoggedInError is returned by commands that need a session.
func NotLoggedInError() *CLIError {
	err := NewCLIError(ErrorTypeNotLoggedIn, "Not logged in", nil)
	err.Suggestion = "Run 'taskmgr auth login' first."
	return err
}

// ForbiddenError creates a forbidden error
func ForbiddenError() *CLIError {
	err := NewCLIError(ErrorTypeForbidden, "Access denied", nil)
	err.Suggestion = "Contact an administrator if you believe this is an error."
	return err
}

// ValidationError creates a validation error
func ValidationError(field, reason string) *CLIError {
	message := fmt.Sprintf("Validation error: %s - %s", field, reason)
	return NewCLIError(ErrorTypeValidation, message, nil)
}

// ServerError creates a server error
func ServerError() *CLIError {
	err := NewCLIError(ErrorTypeServer, "Server error", nil)
	err.Suggestion = "The server encountered an error. Try again in a few moments."
	return err
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, identifier string) *CLIError {
	return NewCLIError(ErrorTypeNotFound,
		fmt.Sprintf("%s not found: %s", resourceType, identifier),
		nil)
}

// RateLimitError creates a rate limit error
func RateLimitError(retryAfter int) *CLIError {
	err := NewCLIError(ErrorTypeRateLimit,
		"Rate limit exceeded. Too many requests.",
		nil)
	err.RetryAfter = retryAfter
	err.Suggestion = fmt.Sprintf("Please wait %d seconds before trying again.", retryAfter)
	return err
}

// IsSessionRevoked reports whether err (or anything it wraps) ended the
// client session, either by revocation or by a failed refresh.
func IsSessionRevoked(err error) bool {
	var cliErr *CLIError
	if !errors.As(err, &cliErr) {
		return false
	}
	return cliErr.Type == ErrorTypeSessionRevoked || cliErr.Type == ErrorTypeSessionExpired
}

// CategorizeError converts a standard error into a CLIError
func CategorizeError(err error) *CLIError {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	errMsg := err.Error()

	var categorized *CLIError
	switch {
	case strings.Contains(errMsg, "connection refused"):
		categorized = NetworkError("Could not connect to server. Make sure it's running.")
	case strings.Contains(errMsg, "timeout"):
		categorized = TimeoutError()
	case strings.Contains(errMsg, "context deadline exceeded"):
		categorized = TimeoutError()
	case strings.Contains(errMsg, "[401]") || strings.Contains(errMsg, "unauthorized"):
		categorized = AuthError("Invalid credentials")
	case strings.Contains(errMsg, "[403]") || strings.Contains(errMsg, "forbidden"):
		categorized = ForbiddenError()
	case strings.Contains(errMsg, "[404]"):
		categorized = NotFoundError("Resource", "unknown")
	case strings.Contains(errMsg, "[429]") || strings.Contains(errMsg, "rate limit"):
		categorized = RateLimitError(60)
	case strings.Contains(errMsg, "[500]") || strings.Contains(errMsg, "server error"):
		categorized = ServerError()
	default:
		return NewCLIError(ErrorTypeUnknown, errMsg, err)
	}
	categorized.Cause = err
	return categorized
}

// FormatError returns a user-friendly error message
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	cliErr := CategorizeError(err)
	var sb strings.Builder

	sb.WriteString("Error")
	if cliErr.Type != ErrorTypeUnknown {
		sb.WriteString(" (")
		sb.WriteString(string(cliErr.Type))
		sb.WriteString(")")
	}
	sb.WriteString(": ")
	sb.WriteString(cliErr.Message)
	sb.WriteString("\n")

	if cliErr.HasSuggestion() {
		sb.WriteString("Suggestion: ")
		sb.WriteString(cliErr.Suggestion)
		sb.WriteString("\n")
	}

	if cliErr.Type == ErrorTypeRateLimit && cliErr.RetryAfter > 0 {
		sb.WriteString(fmt.Sprintf("Retry in: %d seconds\n", cliErr.RetryAfter))
	}

	return sb.String()
}
