package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestNewCLIError creates and validates a CLI error
func TestNewCLIError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewCLIError(ErrorTypeValidation, "Test error", cause)

	if err.Type != ErrorTypeValidation {
		t.Errorf("Expected type %s, got %s", ErrorTypeValidation, err.Type)
	}
	if err.Message != "Test error" {
		t.Errorf("Expected message 'Test error', got '%s'", err.Message)
	}
	if err.Cause != cause {
		t.Error("Cause not set correctly")
	}
}

// TestWithSuggestion adds suggestion to error
func TestWithSuggestion(t *testing.T) {
	err := NewCLIError(ErrorTypeValidation, "Test", nil)
	result := err.WithSuggestion("Try something else")

	if !result.HasSuggestion() {
		t.Error("HasSuggestion returned false")
	}
	if result.Suggestion != "Try something else" {
		t.Errorf("Unexpected suggestion '%s'", result.Suggestion)
	}
}

func TestNetworkError(t *testing.T) {
	err := NetworkError("Connection failed")

	if err.Type != ErrorTypeNetwork {
		t.Errorf("Expected type %s, got %s", ErrorTypeNetwork, err.Type)
	}
	if !strings.Contains(err.Suggestion, "internet") {
		t.Error("Expected helpful suggestion about internet connection")
	}
}

func TestSessionRevokedError(t *testing.T) {
	err := SessionRevokedError(MsgSecuritySessionRevoked, 498)

	if err.Type != ErrorTypeSessionRevoked {
		t.Errorf("Expected type %s, got %s", ErrorTypeSessionRevoked, err.Type)
	}
	if err.StatusCode != 498 {
		t.Errorf("Expected status 498, got %d", err.StatusCode)
	}
	if err.Error() != "Security session revoked. Please login again." {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestIsSessionRevoked(t *testing.T) {
	revoked := SessionRevokedError(MsgSessionExpired, 401)
	wrapped := fmt.Errorf("list notifications: %w", revoked)

	if !IsSessionRevoked(revoked) {
		t.Error("direct revoked error not detected")
	}
	if !IsSessionRevoked(wrapped) {
		t.Error("wrapped revoked error not detected")
	}
	if !IsSessionRevoked(SessionExpiredError(401)) {
		t.Error("expired session not detected")
	}
	if IsSessionRevoked(errors.New("boom")) || IsSessionRevoked(nil) {
		t.Error("plain errors are not revocations")
	}
}

func TestRateLimitError(t *testing.T) {
	err := RateLimitError(30)

	if err.RetryAfter != 30 {
		t.Errorf("Expected RetryAfter 30, got %d", err.RetryAfter)
	}
	if !strings.Contains(err.Suggestion, "30 seconds") {
		t.Errorf("Suggestion should mention wait time: %s", err.Suggestion)
	}
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("Notification", "n-42")
	if !strings.Contains(err.Message, "n-42") {
		t.Errorf("Message should contain identifier: %s", err.Message)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeNetwork},
		{"timeout", errors.New("i/o timeout"), ErrorTypeTimeout},
		{"deadline", errors.New("context deadline exceeded"), ErrorTypeTimeout},
		{"unauthorized", errors.New("[401] unauthorized: bad token"), ErrorTypeAuth},
		{"forbidden", errors.New("[403] forbidden"), ErrorTypeForbidden},
		{"not found", errors.New("[404] not_found: missing"), ErrorTypeNotFound},
		{"rate limit", errors.New("[429] slow down"), ErrorTypeRateLimit},
		{"server", errors.New("[500] boom"), ErrorTypeServer},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown},
		{"already categorized", SessionRevokedError("x", 498), ErrorTypeSessionRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got.Type != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got.Type)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("Categorized error does not wrap %v", tt.err)
			}
		})
	}

	if CategorizeError(nil) != nil {
		t.Error("CategorizeError(nil) should be nil")
	}
}

func TestCategorizeErrorKeepsCauseChain(t *testing.T) {
	err := CategorizeError(fmt.Errorf("list notifications: %w", context.DeadlineExceeded))

	if err.Type != ErrorTypeTimeout {
		t.Errorf("Expected %s, got %s", ErrorTypeTimeout, err.Type)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded lost after categorizing")
	}
	if err.Message != "Request timed out" {
		t.Errorf("Unexpected message %q", err.Message)
	}
}

func TestFormatError(t *testing.T) {
	out := FormatError(SessionRevokedError(MsgSecuritySessionRevoked, 498))

	if !strings.Contains(out, "session_revoked") {
		t.Errorf("Formatted error should include type: %s", out)
	}
	if !strings.Contains(out, "Suggestion:") {
		t.Errorf("Formatted error should include suggestion: %s", out)
	}
}

func TestFormatError_RateLimit(t *testing.T) {
	out := FormatError(RateLimitError(12))
	if !strings.Contains(out, "Retry in: 12 seconds") {
		t.Errorf("Expected retry hint, got %s", out)
	}
}

func TestFormatError_Nil(t *testing.T) {
	if FormatError(nil) != "" {
		t.Error("FormatError(nil) should be empty")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewCLIError(ErrorTypeServer, "wrapped", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}
