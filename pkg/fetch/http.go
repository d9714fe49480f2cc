package fetch

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/httputil"
	"github.com/matzehuels/stackpip/pkg/observability"
)

// HTTPFetcher downloads artifacts over http and https.
type HTTPFetcher struct {
	Client  *http.Client
	Headers map[string]string

	// Attempts bounds retries of connection failures and 5xx responses.
	// Zero means httputil.DefaultAttempts.
	Attempts int
	// Backoff is the initial retry delay; it doubles per attempt.
	Backoff time.Duration
}

// NewHTTPFetcher returns an HTTPFetcher with a default client.
func NewHTTPFetcher(timeout time.Duration, attempts int) *HTTPFetcher {
	return &HTTPFetcher{
		Client:   httputil.NewClient(timeout),
		Attempts: attempts,
		Backoff:  httputil.DefaultBackoff,
	}
}

// Fetch opens the artifact URL. Only the request is retried; once the
// body starts streaming, failures surface to the reader.
func (f *HTTPFetcher) Fetch(ctx context.Context, req dist.Requirement) (*Response, error) {
	loc, err := Location(req)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(loc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "parse %s", loc)
	}

	client := f.Client
	if client == nil {
		client = httputil.NewClient(0)
	}
	policy := httputil.Policy{
		Attempts: f.Attempts,
		Backoff:  f.Backoff,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			observability.HTTP().OnRetry(ctx, u.Host, u.Path, attempt, err, wait)
		},
	}

	var resp *http.Response
	err = httputil.RetryWithBackoff(ctx, policy, func() error {
		r, err := f.do(ctx, client, u)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if errors.GetCode(err) != "" {
			return nil, errors.Wrap(errors.ErrCodeFetch, err, "download %s", loc)
		}
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "download %s", loc)
	}

	return &Response{
		Body:     resp.Body,
		Size:     resp.ContentLength,
		Filename: filenameFromURL(resp.Request.URL.String()),
	}, nil
}

func (f *HTTPFetcher) do(ctx context.Context, client *http.Client, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range f.Headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, u.Host, u.Path)
	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, u.Host, u.Path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &httputil.RetryableError{Err: err}
	}
	hooks.OnResponse(ctx, req.Method, u.Host, u.Path, resp.StatusCode, time.Since(start))

	if err := httputil.CheckStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}
