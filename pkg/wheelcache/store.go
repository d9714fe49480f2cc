package wheelcache

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matzehuels/stackpip/pkg/cache"
	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fsutil"
	"github.com/matzehuels/stackpip/pkg/observability"
)

const (
	wheelsDir   = "wheels"
	archivesDir = "archives"
	tmpDir      = "tmp"
)

// Store is a directory of cached wheels and unpacked archives.
// A Store is safe for concurrent use by multiple goroutines and processes.
type Store struct {
	root string
}

// New opens (and creates if needed) a store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "cache directory is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "cache directory %s", dir)
	}
	for _, sub := range []string{wheelsDir, archivesDir, tmpDir} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeEnvironment, err, "create cache directory")
		}
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute store directory.
func (s *Store) Root() string { return s.root }

// Lookup returns a cached wheel that can serve req without any fetch.
func (s *Store) Lookup(ctx context.Context, req dist.Requirement) (dist.Wheel, bool) {
	w, ok := s.lookup(req)
	if ok {
		observability.Cache().OnCacheHit(ctx, "wheel")
	} else {
		observability.Cache().OnCacheMiss(ctx, "wheel")
	}
	return w, ok
}

func (s *Store) lookup(req dist.Requirement) (dist.Wheel, bool) {
	switch req.Source.Kind {
	case dist.SourceDirectory, dist.SourceEditable:
		return dist.Wheel{}, false

	case dist.SourcePath:
		if dist.KindOf(req.Source.Path) != dist.ArchiveWheel {
			return dist.Wheel{}, false
		}
		fn, err := dist.ParseWheelFilename(req.Source.Path)
		if err != nil || fn.Name != req.Name {
			return dist.Wheel{}, false
		}
		if info, err := os.Stat(req.Source.Path); err != nil || !info.Mode().IsRegular() {
			return dist.Wheel{}, false
		}
		if !pinned(req, req.Source.Path) {
			return dist.Wheel{}, false
		}
		return dist.Wheel{Requirement: req, Filename: fn, Path: req.Source.Path}, true

	case dist.SourceURL:
		return s.newest(s.EntryDir(req), req)
	}

	// Registry release with a known file: exact file name match.
	if req.Source.URL != "" {
		if name := urlFilename(req.Source.URL); dist.KindOf(name) == dist.ArchiveWheel {
			path := filepath.Join(s.EntryDir(req), name)
			if fn, err := dist.ParseWheelFilename(name); err == nil && fileExists(path) && pinned(req, path) {
				return dist.Wheel{Requirement: req, Filename: fn, Path: path}, true
			}
		}
	}
	return s.newest(s.EntryDir(req), req)
}

// newest returns the highest-versioned wheel in dir that satisfies req.
func (s *Store) newest(dir string, req dist.Requirement) (dist.Wheel, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return dist.Wheel{}, false
	}
	var candidates []dist.Wheel
	for _, e := range entries {
		if e.IsDir() || dist.KindOf(e.Name()) != dist.ArchiveWheel {
			continue
		}
		fn, err := dist.ParseWheelFilename(e.Name())
		if err != nil || fn.Name != req.Name {
			continue
		}
		if !req.Specifier.IsEmpty() && !req.Specifier.Contains(fn.Version) {
			continue
		}
		if !pinned(req, filepath.Join(dir, e.Name())) {
			continue
		}
		candidates = append(candidates, dist.Wheel{Requirement: req, Filename: fn, Path: filepath.Join(dir, e.Name())})
	}
	if len(candidates) == 0 {
		return dist.Wheel{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return dist.CompareVersions(candidates[i].Version(), candidates[j].Version()) > 0
	})
	return candidates[0], true
}

// pinned reports whether the file at path matches one of req's hashes.
// Requirements without hashes accept any file.
func pinned(req dist.Requirement, path string) bool {
	return dist.VerifyFile(path, req.Hashes) == nil
}

// EntryDir is the directory where wheels for req are promoted.
func (s *Store) EntryDir(req dist.Requirement) string {
	base := filepath.Join(s.root, wheelsDir, string(req.Name))
	switch req.Source.Kind {
	case dist.SourceURL:
		return filepath.Join(base, "url-"+shortHash(req.Source.URL))
	case dist.SourcePath, dist.SourceDirectory, dist.SourceEditable:
		return filepath.Join(base, "src-"+shortHash(req.Source.Path))
	}
	return base
}

// TempFile creates a file under tmp/. The caller either promotes it or
// removes it.
func (s *Store) TempFile(pattern string) (*os.File, error) {
	f, err := os.CreateTemp(filepath.Join(s.root, tmpDir), pattern)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEnvironment, err, "create temp file")
	}
	return f, nil
}

// TempDir creates a directory under tmp/.
func (s *Store) TempDir(pattern string) (string, error) {
	dir, err := os.MkdirTemp(filepath.Join(s.root, tmpDir), pattern)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeEnvironment, err, "create temp dir")
	}
	return dir, nil
}

// Promote moves a finished wheel from tmpPath into the entry directory for
// req under filename and returns the resulting Wheel. tmpPath must be on
// the same filesystem as the store, which holds for files from TempFile.
func (s *Store) Promote(tmpPath string, req dist.Requirement, filename string) (dist.Wheel, error) {
	fn, err := dist.ParseWheelFilename(filename)
	if err != nil {
		return dist.Wheel{}, err
	}
	if fn.Name != req.Name {
		return dist.Wheel{}, errors.New(errors.ErrCodeFetch, "artifact %s does not belong to %s", filename, req.Name)
	}
	hash, err := fsutil.HashFile(tmpPath)
	if err != nil {
		return dist.Wheel{}, errors.Wrap(errors.ErrCodeEnvironment, err, "hash %s", tmpPath)
	}
	dir := s.EntryDir(req)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dist.Wheel{}, errors.Wrap(errors.ErrCodeEnvironment, err, "create %s", dir)
	}
	dst := filepath.Join(dir, fn.String())
	if err := os.Rename(tmpPath, dst); err != nil {
		return dist.Wheel{}, errors.Wrap(errors.ErrCodeEnvironment, err, "promote %s", filename)
	}
	return dist.Wheel{Requirement: req, Filename: fn, Path: dst, Hash: hash}, nil
}

// Prune removes leftover temporary files from interrupted runs.
func (s *Store) Prune() (int, error) {
	dir := filepath.Join(s.root, tmpDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Clear removes every cached entry.
func (s *Store) Clear() error {
	for _, sub := range []string{wheelsDir, archivesDir, tmpDir} {
		dir := filepath.Join(s.root, sub)
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Wheels lists every cached wheel file.
func (s *Store) Wheels() ([]string, error) {
	var out []string
	err := filepath.WalkDir(filepath.Join(s.root, wheelsDir), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && dist.KindOf(d.Name()) == dist.ArchiveWheel {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func urlFilename(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	return rawURL[strings.LastIndex(rawURL, "/")+1:]
}

func shortHash(s string) string {
	return cache.Hash([]byte(s))[:16]
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
