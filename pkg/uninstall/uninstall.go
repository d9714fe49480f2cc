// Package uninstall removes installed distributions, guided by RECORD.
//
// Only files listed in the distribution's own RECORD are touched; there is
// no directory sweep. A listed file whose current digest differs from the
// recorded one was modified or replaced after install and is skipped.
// Directories are removed only once they are empty.
//
// RECORD itself is removed last, so an interrupted uninstall leaves a
// manifest that a later run can finish from.
package uninstall

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fsutil"
	"github.com/matzehuels/stackpip/pkg/observability"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
)

// Options configures an uninstall.
type Options struct {
	// Prefix bounds every removal. Defaults to the environment root derived
	// from the distribution's site-packages directory.
	Prefix   string
	Reporter observability.Reporter
	Logger   *log.Logger
}

// Skip is a listed file that was left in place.
type Skip struct {
	Path   string
	Reason string
}

// Result describes what an uninstall did.
type Result struct {
	ID      string
	Removed []string // files, absolute
	Skipped []Skip
	Missing []string // listed but already gone
	Dirs    []string // directories pruned because they became empty
}

// UninstallError aggregates per-file failures. The files it does not
// mention were handled normally.
type UninstallError struct {
	ID   string
	Errs []error
}

func (e *UninstallError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("uninstall %s: %s", e.ID, strings.Join(msgs, "; "))
}

func (e *UninstallError) Unwrap() []error { return e.Errs }

// Uninstall removes d from its environment. The Result is always non-nil
// when the manifest could be read, even if err reports failed files.
func Uninstall(ctx context.Context, d *sitepackages.Distribution, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	reporter := observability.OrNoop(opts.Reporter)
	id := d.ID()

	entries, err := manifest(d)
	if err != nil {
		reporter.OnUninstall(id, 0, 0, err)
		return nil, err
	}

	root := filepath.Clean(d.Root)
	prefix := opts.Prefix
	if prefix == "" {
		prefix = sitepackages.EnvPrefix(root)
	}
	prefix = filepath.Clean(prefix)

	res := &Result{ID: id}
	var errs []error
	dirs := make(map[string]bool)
	var record string

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		path := filepath.Join(root, filepath.FromSlash(e.Path))
		if err := errors.ValidateWithin(prefix, path); err != nil {
			errs = append(errs, err)
			continue
		}
		if filepath.Base(path) == sitepackages.RecordFile && filepath.Dir(path) == filepath.Clean(d.Path) {
			record = path
			continue
		}

		dirs[filepath.Dir(path)] = true
		removed, err := removeFile(path, e, res)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed && strings.HasSuffix(path, ".py") {
			for _, pyc := range bytecodeFor(path) {
				if os.Remove(pyc) == nil {
					res.Removed = append(res.Removed, pyc)
					dirs[filepath.Dir(pyc)] = true
				}
			}
		}
	}

	// A failed file keeps RECORD in place so a rerun can finish the job.
	if len(errs) == 0 {
		if record == "" {
			record = filepath.Join(d.Path, sitepackages.RecordFile)
		}
		switch err := os.Remove(record); {
		case err == nil:
			res.Removed = append(res.Removed, record)
			dirs[filepath.Dir(record)] = true
		case !os.IsNotExist(err):
			errs = append(errs, errors.Wrap(errors.ErrCodeUninstall, err, "remove %s", record))
		}
	}

	res.Dirs = pruneDirs(dirs, root)

	var outErr error
	if len(errs) > 0 {
		outErr = &UninstallError{ID: id, Errs: errs}
	}
	reporter.OnUninstall(id, len(res.Removed), len(res.Skipped), outErr)
	logger.Debug("uninstalled", "dist", id, "removed", len(res.Removed), "skipped", len(res.Skipped), "missing", len(res.Missing))
	for _, s := range res.Skipped {
		logger.Warn("left modified file in place", "dist", id, "path", s.Path, "reason", s.Reason)
	}
	return res, outErr
}

// manifest returns d's RECORD entries, reading them from disk when the
// snapshot does not carry them.
func manifest(d *sitepackages.Distribution) ([]sitepackages.RecordEntry, error) {
	if len(d.Record) > 0 {
		return d.Record, nil
	}
	f, err := os.Open(filepath.Join(d.Path, sitepackages.RecordFile))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestMissing, err, "%s has no readable RECORD", d.ID())
	}
	defer f.Close()
	entries, err := sitepackages.ReadRecord(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestMissing, err, "%s", d.ID())
	}
	if len(entries) == 0 {
		return nil, errors.New(errors.ErrCodeManifestMissing, "%s has an empty RECORD", d.ID())
	}
	return entries, nil
}

// removeFile deletes path if its digest still matches e. It reports
// whether the file was removed.
func removeFile(path string, e sitepackages.RecordEntry, res *Result) (bool, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		res.Missing = append(res.Missing, path)
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(errors.ErrCodeUninstall, err, "stat %s", path)
	}

	// A symlinked install whose cache target is gone has no content left to
	// verify; the link itself is ours.
	if info.Mode()&os.ModeSymlink != 0 && !targetExists(path) {
		e.Digest = ""
	}

	if e.Digest != "" {
		digest, _, err := fsutil.FileDigest(path)
		if err != nil {
			return false, errors.Wrap(errors.ErrCodeUninstall, err, "read %s", path)
		}
		if digest != e.Digest {
			res.Skipped = append(res.Skipped, Skip{Path: path, Reason: "content changed since install"})
			return false, nil
		}
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			res.Missing = append(res.Missing, path)
			return false, nil
		}
		return false, errors.Wrap(errors.ErrCodeUninstall, err, "remove %s", path)
	}
	res.Removed = append(res.Removed, path)
	return true, nil
}

func targetExists(link string) bool {
	_, err := os.Stat(link)
	return err == nil
}

// bytecodeFor lists the compiled files Python may have written for src.
func bytecodeFor(src string) []string {
	dir, base := filepath.Split(src)
	stem := strings.TrimSuffix(base, ".py")
	matches, _ := filepath.Glob(filepath.Join(dir, "__pycache__", stem+".*.pyc"))
	return append(matches, src+"c")
}

// pruneDirs removes now-empty directories under root, deepest first.
// Directories outside site-packages (bin/, include/) are shared with the
// rest of the environment and are left alone.
func pruneDirs(dirs map[string]bool, root string) []string {
	list := make([]string, 0, len(dirs))
	for d := range dirs {
		if errors.ValidateWithin(root, d) == nil {
			list = append(list, d)
		}
	}
	sort.Slice(list, func(i, j int) bool { return len(list[i]) > len(list[j]) })

	var removed []string
	for _, dir := range list {
		removed = append(removed, fsutil.RemoveEmptyParents(dir, root)...)
	}
	return removed
}
