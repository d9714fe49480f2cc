package download

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/wheelcache"
)

// unpackSdist extracts a source archive into dir and returns the project
// root: the archive's single top-level directory, or dir itself.
func unpackSdist(ctx context.Context, archive, filename, dir string) (string, error) {
	lower := strings.ToLower(filename)
	var err error
	switch {
	case strings.HasSuffix(lower, ".zip"):
		err = wheelcache.ExtractZip(ctx, archive, dir)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		err = extractTarGz(ctx, archive, dir)
	default:
		return "", errors.New(errors.ErrCodeUnsupported, "unsupported source archive %s", filename)
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeBuild, err, "unpack %s", filename)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeBuild, err, "unpack %s", filename)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

func extractTarGz(ctx context.Context, archive, dir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeDir {
			// Links and devices have no place in a source archive.
			continue
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if name == "" || name == "." {
			continue
		}
		if err := errors.ValidateArchivePath(strings.TrimSuffix(name, "/")); err != nil {
			return err
		}
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		perm := os.FileMode(hdr.Mode).Perm() | 0o600
		out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
}
