package fetch

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
)

// FileFetcher opens artifacts on the local filesystem.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, req dist.Requirement) (*Response, error) {
	loc, err := Location(req)
	if err != nil {
		return nil, err
	}
	path, err := localPath(loc)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "%s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeFetch, err, "open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(errors.ErrCodeFetch, err, "stat %s", path)
	}
	if info.IsDir() {
		f.Close()
		return nil, errors.New(errors.ErrCodeUnsupported, "%s is a directory", path)
	}
	return &Response{Body: f, Size: info.Size(), Filename: filepath.Base(path)}, nil
}

func localPath(loc string) (string, error) {
	if !strings.HasPrefix(loc, "file:") {
		return loc, nil
	}
	u, err := url.Parse(loc)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidRequirement, err, "parse %s", loc)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", errors.New(errors.ErrCodeUnsupported, "remote file URL %s", loc)
	}
	return filepath.FromSlash(u.Path), nil
}
