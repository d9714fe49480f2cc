package httputil

import (
	"net/http"
	"time"

	"github.com/matzehuels/stackpip/pkg/errors"
)

// DefaultTimeout bounds a whole artifact download, body included.
const DefaultTimeout = 5 * time.Minute

// NewClient creates an HTTP client with the given timeout.
// A zero timeout selects DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// CheckStatus converts a non-2xx status into an error. Server errors and
// rate limiting are wrapped in RetryableError.
func CheckStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "status %d", code)
	case code == http.StatusTooManyRequests, code >= 500:
		return &RetryableError{Err: errors.New(errors.ErrCodeNetwork, "status %d", code)}
	default:
		return errors.New(errors.ErrCodeNetwork, "status %d", code)
	}
}
