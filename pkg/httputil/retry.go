package httputil

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/matzehuels/stackpip/pkg/errors"
)

// RetryableError marks a failure as transient: a dropped connection, a
// timeout, a 5xx or 429 response.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Policy bounds how often and how patiently an artifact request is retried.
type Policy struct {
	Attempts   int
	Backoff    time.Duration // first delay, doubled per attempt
	MaxBackoff time.Duration

	// OnRetry runs before each wait, with the 1-based attempt that failed.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Defaults for artifact downloads.
const (
	DefaultAttempts   = 3
	DefaultBackoff    = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// WithDefaults fills zero fields.
func (p Policy) WithDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	return p
}

// RetryWithBackoff runs fn until it succeeds, fails permanently, or the
// policy's attempts are used up. The last error is returned, or ctx.Err()
// when the context ends during a wait.
func RetryWithBackoff(ctx context.Context, p Policy, fn func() error) error {
	p = p.WithDefaults()
	delay := p.Backoff

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !Retryable(lastErr) || attempt == p.Attempts {
			return lastErr
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, p.MaxBackoff)
	}
	return lastErr
}

// Retryable reports whether err is worth another attempt. NOT_FOUND and
// cancellation are final; NETWORK_ERROR and RetryableError are transient.
// Anything else, hash mismatches included, is final.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, errors.ErrCodeNotFound):
		return false
	case stderrors.As(err, new(*RetryableError)):
		return true
	}
	return errors.Is(err, errors.ErrCodeNetwork)
}
