// Package httputil provides HTTP plumbing shared by artifact fetchers.
//
// # Overview
//
//   - [NewClient]: an *http.Client with a request timeout
//   - [CheckStatus]: maps response status codes onto error codes
//   - [RetryWithBackoff]: re-runs transient failures under a [Policy]
//
// # Retry
//
// [Retryable] decides what is worth repeating. A [RetryableError] or an
// error carrying NETWORK_ERROR is retried; NOT_FOUND, hash mismatches and
// cancellation are not. [CheckStatus] already marks 5xx and 429 responses,
// so callers only need to wrap connection failures:
//
//	policy := httputil.Policy{
//	    OnRetry: func(attempt int, err error, wait time.Duration) {
//	        observability.HTTP().OnRetry(ctx, host, path, attempt, err, wait)
//	    },
//	}
//	err := httputil.RetryWithBackoff(ctx, policy, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    return httputil.CheckStatus(resp.StatusCode)
//	})
//
// # Configuration
//
// Zero policy fields take the package defaults:
//
//   - Request timeout: 5 minutes (wheels can be large)
//   - Attempts: 3
//   - Backoff: 1 second, doubling up to 30 seconds
package httputil
