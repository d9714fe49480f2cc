package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Fingerprinter computes a content fingerprint for a local source tree.
type Fingerprinter interface {
	Fingerprint(dir string) (string, error)
}

// FingerprintFunc adapts a function to the Fingerprinter interface.
type FingerprintFunc func(dir string) (string, error)

// Fingerprint calls f(dir).
func (f FingerprintFunc) Fingerprint(dir string) (string, error) { return f(dir) }

// skipDirs are never part of a project's source identity, at any depth.
var skipDirs = map[string]bool{
	".git":          true,
	".hg":           true,
	".svn":          true,
	"__pycache__":   true,
	".mypy_cache":   true,
	".pytest_cache": true,
	".ruff_cache":   true,
}

// rootSkipDirs are build outputs and environments, skipped only directly
// under the project root. A package may well be named build or dist.
var rootSkipDirs = map[string]bool{
	".venv":        true,
	"venv":         true,
	".tox":         true,
	".nox":         true,
	"node_modules": true,
	"build":        true,
	"dist":         true,
}

// TreeFingerprint hashes the relative path and content of every regular file
// under dir. Build outputs, VCS metadata and bytecode caches are skipped so
// that building a project does not change its own fingerprint.
func TreeFingerprint(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return HashFile(dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == dir {
				return nil
			}
			if skipDirs[name] || strings.HasSuffix(name, ".egg-info") {
				return filepath.SkipDir
			}
			if rootSkipDirs[name] && filepath.Dir(path) == filepath.Clean(dir) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && !strings.HasSuffix(name, ".pyc") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(files)

	h := sha256.New()
	for _, path := range files {
		rel, _ := filepath.Rel(dir, path)
		fmt.Fprintf(h, "%s\x00", filepath.ToSlash(rel))
		if err := hashInto(h, path); err != nil {
			return "", err
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// FingerprintCache memoizes fingerprints for the lifetime of one run.
// The environment snapshot and the planner must agree on a single value per
// source tree, so each directory is hashed at most once.
type FingerprintCache struct {
	inner Fingerprinter
	mu    sync.Mutex
	seen  map[string]string
}

// NewFingerprintCache wraps inner; a nil inner hashes with TreeFingerprint.
func NewFingerprintCache(inner Fingerprinter) *FingerprintCache {
	if inner == nil {
		inner = FingerprintFunc(TreeFingerprint)
	}
	return &FingerprintCache{inner: inner, seen: make(map[string]string)}
}

// Fingerprint returns the memoized fingerprint of dir.
func (c *FingerprintCache) Fingerprint(dir string) (string, error) {
	key := filepath.Clean(dir)
	c.mu.Lock()
	if fp, ok := c.seen[key]; ok {
		c.mu.Unlock()
		return fp, nil
	}
	c.mu.Unlock()

	fp, err := c.inner.Fingerprint(key)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.seen[key] = fp
	c.mu.Unlock()
	return fp, nil
}

// Forget drops the memoized value for dir.
func (c *FingerprintCache) Forget(dir string) {
	c.mu.Lock()
	delete(c.seen, filepath.Clean(dir))
	c.mu.Unlock()
}

var _ Fingerprinter = (*FingerprintCache)(nil)
