package fetch

import (
	"context"
	"net/url"
	"strings"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
)

// Router dispatches to a Fetcher by URL scheme. Plain paths use "file".
type Router struct {
	schemes map[string]Fetcher
}

// NewRouter returns a Router with http, https and file handlers. Add an
// s3 handler with Handle when an object store is configured.
func NewRouter(httpFetcher Fetcher) *Router {
	r := &Router{schemes: make(map[string]Fetcher)}
	r.Handle("file", FileFetcher{})
	if httpFetcher != nil {
		r.Handle("http", httpFetcher)
		r.Handle("https", httpFetcher)
	}
	return r
}

// Handle registers f for scheme.
func (r *Router) Handle(scheme string, f Fetcher) {
	r.schemes[strings.ToLower(scheme)] = f
}

func (r *Router) Fetch(ctx context.Context, req dist.Requirement) (*Response, error) {
	loc, err := Location(req)
	if err != nil {
		return nil, err
	}
	scheme := "file"
	if u, err := url.Parse(loc); err == nil && u.Scheme != "" {
		scheme = strings.ToLower(u.Scheme)
	}
	f, ok := r.schemes[scheme]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupported, "no fetcher for %s URLs (%s)", scheme, req.ID())
	}
	return f.Fetch(ctx, req)
}
