package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"
)

// APIError represents an API error response
type APIError struct {
	Code       string
	Message    string
	StatusCode int
	Details    map[string]interface{}
}

func (e *APIError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("[%d] %s: %s (details: %v)", e.StatusCode, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, e.Message)
}

// ParseError parses an error response from the API
func ParseError(resp *resty.Response) error {
	statusCode := resp.StatusCode()

	var errResp ErrorResponse
	if err := json.Unmarshal(resp.Body(), &errResp); err == nil && (errResp.Code != "" || errResp.Message != "") {
		code := errResp.Code
		if code == "" {
			code = codeForStatus(statusCode)
		}
		return &APIError{
			Code:       code,
			Message:    errResp.Message,
			StatusCode: statusCode,
			Details:    errResp.Details,
		}
	}

	// Fallback to generic error
	return &APIError{
		Code:       codeForStatus(statusCode),
		Message:    string(resp.Body()),
		StatusCode: statusCode,
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	default:
		return "unknown_error"
	}
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsUnauthorized checks if error is due to missing/invalid authentication
func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

// IsForbidden checks if error is due to insufficient permissions
func IsForbidden(err error) bool {
	return statusOf(err) == http.StatusForbidden
}

// IsNotFound checks if error is due to resource not found
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsServerError checks if error is due to server error (5xx)
func IsServerError(err error) bool {
	return statusOf(err) >= 500
}

// CheckResponse checks if response is successful and returns error if not
func CheckResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}

	if !resp.IsSuccess() {
		return ParseError(resp)
	}

	return nil
}

// decode checks resp and unmarshals its body into target.
func decode(resp *resty.Response, err error, target interface{}) error {
	if err := CheckResponse(resp, err); err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), target); err != nil {
		return fmt.Errorf("decode %s response: %w", resp.Request.URL, err)
	}
	return nil
}
