package fetch

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
)

// Response is an open artifact stream. The caller must close Body.
type Response struct {
	Body     io.ReadCloser
	Size     int64 // -1 when unknown
	Filename string
}

// Kind classifies the artifact by its file name.
func (r *Response) Kind() dist.ArchiveKind { return dist.KindOf(r.Filename) }

// Fetcher opens the artifact for a requirement.
type Fetcher interface {
	Fetch(ctx context.Context, req dist.Requirement) (*Response, error)
}

// Func adapts a function to the Fetcher interface.
type Func func(ctx context.Context, req dist.Requirement) (*Response, error)

func (f Func) Fetch(ctx context.Context, req dist.Requirement) (*Response, error) { return f(ctx, req) }

// Location returns the URL an artifact is fetched from. Local paths are
// returned as file:// URLs. Directories and editables have no artifact.
func Location(req dist.Requirement) (string, error) {
	switch req.Source.Kind {
	case dist.SourceURL, dist.SourceRegistry:
		if req.Source.URL == "" {
			return "", errors.New(errors.ErrCodeNotFound, "%s: no artifact URL", req.ID())
		}
		return req.Source.URL, nil
	case dist.SourcePath:
		return "file://" + req.Source.Path, nil
	}
	return "", errors.New(errors.ErrCodeUnsupported, "%s: %s sources are built, not fetched", req.ID(), req.Source.Kind)
}

// filenameFromURL returns the unescaped last path segment of raw.
func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	name := path.Base(p)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return strings.TrimSpace(name)
}
