package tts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Sentinel errors for the failure classes callers recover from interactively.
var (
	ErrMissingAPIKey     = errors.New("missing api key")
	ErrMissingDependency = errors.New("missing dependency")
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// APIError represents a rejection from the synthesis API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{StatusCode: statusCode, Message: message}
}

// IsFatalAPIError reports whether err is an auth rejection (401/403) that
// retrying with the same credentials cannot fix.
func IsFatalAPIError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
}

// IsNetworkError reports whether err is a transport-level failure rather
// than an API rejection. Context cancellation does not count.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
