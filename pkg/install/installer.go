package install

import (
	"bytes"
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fsutil"
	"github.com/matzehuels/stackpip/pkg/observability"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
	"github.com/matzehuels/stackpip/pkg/wheelcache"
)

// DefaultInstallerName is written to INSTALLER.
const DefaultInstallerName = "stackpip"

// Item is one wheel to install together with its provenance.
type Item struct {
	Wheel dist.Wheel

	// Requested marks a top-level requirement (REQUESTED file).
	Requested bool

	// Fingerprint of the local source tree the wheel was built from.
	// Computed through Installer.Fingerprint when empty.
	Fingerprint string

	// Editable selects dir_info.editable in direct_url.json.
	Editable bool
}

// Result lists what Install placed.
type Result struct {
	Installed     []*sitepackages.Distribution
	CompileErrors []CompileError
}

// Installer applies wheels to one environment.
type Installer struct {
	// SitePackages is the purelib directory. Prefix is the environment root;
	// when empty it is derived from SitePackages (lib/pythonX.Y/site-packages).
	SitePackages string
	Prefix       string

	// Python is the interpreter written into script shebangs.
	Python string

	LinkMode    LinkMode
	Store       *wheelcache.Store
	Compiler    Compiler
	Fingerprint fsutil.Fingerprinter
	Reporter    observability.Reporter
	Logger      *log.Logger

	// Name is written to INSTALLER (default: "stackpip").
	Name string

	// Concurrency bounds parallel installs in Install (default: 4).
	Concurrency int
}

// New returns an Installer for sitePackages with defaults for everything
// else.
func New(sitePackages string, store *wheelcache.Store, logger *log.Logger) *Installer {
	if logger == nil {
		logger = log.Default()
	}
	return &Installer{
		SitePackages: sitePackages,
		Store:        store,
		LinkMode:     DefaultLinkMode,
		Compiler:     NoopCompiler{},
		Reporter:     observability.NoopReporter{},
		Logger:       logger,
	}
}

// Install places every item, then compiles bytecode for the ones that
// succeeded. Failures are joined *InstallErrors; compile problems are in
// Result.CompileErrors.
func (in *Installer) Install(ctx context.Context, items []Item) (*Result, error) {
	limit := in.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g := new(errgroup.Group)
	g.SetLimit(limit)

	var mu sync.Mutex
	var failures []error
	installed := make([]*sitepackages.Distribution, len(items))

	for i, item := range items {
		g.Go(func() error {
			d, err := in.InstallOne(ctx, item)
			if err != nil {
				mu.Lock()
				failures = append(failures, &InstallError{ID: item.Wheel.ID(), Name: item.Wheel.Name(), Err: err})
				mu.Unlock()
				return nil
			}
			installed[i] = d
			return nil
		})
	}
	g.Wait()

	res := &Result{}
	for _, d := range installed {
		if d != nil {
			res.Installed = append(res.Installed, d)
		}
	}
	res.CompileErrors = in.compile(ctx, res.Installed)
	return res, stderrors.Join(failures...)
}

func (in *Installer) compile(ctx context.Context, dists []*sitepackages.Distribution) []CompileError {
	if in.Compiler == nil || len(dists) == 0 {
		return nil
	}
	var files []string
	for _, d := range dists {
		for _, e := range d.Record {
			if strings.HasSuffix(e.Path, ".py") && !strings.HasPrefix(e.Path, "../") {
				files = append(files, filepath.Join(in.SitePackages, filepath.FromSlash(e.Path)))
			}
		}
	}
	start := time.Now()
	errs, err := in.Compiler.Compile(ctx, files)
	if err != nil {
		errs = append(errs, CompileError{Err: err})
	}
	in.logger().Debug("compiled bytecode", "files", len(files), "failures", len(errs), "duration", time.Since(start).Round(time.Millisecond))
	return errs
}

// InstallOne installs a single wheel and returns the committed
// distribution. On failure no RECORD is written and placed files are
// removed.
func (in *Installer) InstallOne(ctx context.Context, item Item) (*sitepackages.Distribution, error) {
	if in.Store == nil {
		return nil, errors.New(errors.ErrCodeInternal, "installer has no artifact store")
	}
	if in.SitePackages == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "installer has no site-packages directory")
	}
	w := item.Wheel
	id := w.ID()

	unpacked, err := in.Store.Unpack(ctx, w)
	if err != nil {
		return nil, err
	}
	distInfo, err := findDistInfo(unpacked, w.Filename)
	if err != nil {
		return nil, err
	}
	if err := wheelcache.VerifyRecord(unpacked, distInfo); err != nil {
		return nil, err
	}

	tx := &transaction{
		installer: in,
		site:      filepath.Clean(in.SitePackages),
		prefix:    in.prefix(),
		distInfo:  filepath.Join(filepath.Clean(in.SitePackages), distInfo),
		name:      w.Name(),
	}
	if err := tx.placeTree(ctx, unpacked, distInfo, w.Filename.DataDir()); err != nil {
		tx.rollback()
		return nil, errors.Wrap(errors.ErrCodeInstall, err, "place %s", w.Filename)
	}
	if err := tx.writeMetadata(item); err != nil {
		tx.rollback()
		return nil, errors.Wrap(errors.ErrCodeInstall, err, "write metadata for %s", id)
	}
	if err := tx.commit(); err != nil {
		tx.rollback()
		return nil, errors.Wrap(errors.ErrCodeInstall, err, "commit RECORD for %s", id)
	}

	d, diags := sitepackages.ReadDistribution(tx.site, distInfo)
	if d == nil || d.MetadataErr != nil {
		msg := "installed distribution is unreadable"
		if len(diags) > 0 {
			msg = diags[0].Message
		}
		return nil, errors.New(errors.ErrCodeInstall, "%s: %s", id, msg)
	}
	if tx.fellBack {
		in.logger().Debug("hardlink unavailable, copied files", "dist", id)
	}
	observability.OrNoop(in.Reporter).OnInstall(id)
	in.logger().Debug("installed", "dist", id, "files", len(d.Record), "mode", in.LinkMode)
	return d, nil
}

func (in *Installer) prefix() string {
	if in.Prefix != "" {
		return filepath.Clean(in.Prefix)
	}
	return sitepackages.EnvPrefix(in.SitePackages)
}

func (in *Installer) logger() *log.Logger {
	if in.Logger == nil {
		return log.Default()
	}
	return in.Logger
}

func findDistInfo(unpacked string, fn dist.WheelFilename) (string, error) {
	want := fn.DistInfoDir()
	if info, err := os.Stat(filepath.Join(unpacked, want)); err == nil && info.IsDir() {
		return want, nil
	}
	entries, err := os.ReadDir(unpacked)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInstall, err, "read %s", fn)
	}
	var found []string
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".dist-info") {
			found = append(found, e.Name())
		}
	}
	if len(found) != 1 {
		return "", errors.New(errors.ErrCodeInstall, "%s: expected one .dist-info directory, found %d", fn, len(found))
	}
	return found[0], nil
}

// transaction tracks the files one install has written so far.
type transaction struct {
	installer *Installer
	site      string
	prefix    string
	distInfo  string
	name      dist.PackageName

	placed   []string
	record   []sitepackages.RecordEntry
	fellBack bool
}

// generatedFiles are dist-info members the installer writes itself, so
// copies shipped inside a wheel are ignored.
var generatedFiles = map[string]bool{
	sitepackages.RecordFile:    true,
	"RECORD.jws":               true,
	"RECORD.p7s":               true,
	"INSTALLER":                true,
	"REQUESTED":                true,
	sitepackages.DirectURLFile: true,
	sitepackages.SourceFile:    true,
}

func (tx *transaction) placeTree(ctx context.Context, unpacked, distInfo, dataDir string) error {
	var rels []string
	err := filepath.WalkDir(unpacked, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(unpacked, path)
		if err != nil {
			return err
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(rels)

	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dir, file, ok := strings.Cut(rel, "/"); ok && dir == distInfo && generatedFiles[file] {
			continue
		}
		target, script, err := tx.target(rel, dataDir)
		if err != nil {
			return err
		}
		if err := tx.placeFile(filepath.Join(unpacked, filepath.FromSlash(rel)), target, script); err != nil {
			return err
		}
	}
	return nil
}

// target maps an archive path to its destination. script reports a file
// headed for the scripts directory.
func (tx *transaction) target(rel, dataDir string) (string, bool, error) {
	if err := errors.ValidateArchivePath(rel); err != nil {
		return "", false, err
	}
	var dst string
	script := false
	if rest, ok := strings.CutPrefix(rel, dataDir+"/"); ok {
		scheme, sub, ok := strings.Cut(rest, "/")
		if !ok {
			return "", false, errors.New(errors.ErrCodeInstall, "unexpected file %s in %s", rest, dataDir)
		}
		switch scheme {
		case "purelib", "platlib":
			dst = filepath.Join(tx.site, filepath.FromSlash(sub))
		case "scripts":
			dst = filepath.Join(tx.prefix, "bin", filepath.FromSlash(sub))
			script = true
		case "data":
			dst = filepath.Join(tx.prefix, filepath.FromSlash(sub))
		case "headers":
			dst = filepath.Join(tx.prefix, "include", string(tx.name), filepath.FromSlash(sub))
		default:
			return "", false, errors.New(errors.ErrCodeInstall, "unknown wheel data scheme %q", scheme)
		}
	} else {
		dst = filepath.Join(tx.site, filepath.FromSlash(rel))
	}
	if err := errors.ValidateWithin(tx.prefix, dst); err != nil {
		if err2 := errors.ValidateWithin(tx.site, dst); err2 != nil {
			return "", false, err
		}
	}
	return dst, script, nil
}

func (tx *transaction) placeFile(src, dst string, script bool) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	perm := info.Mode().Perm()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	if script {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		data = rewriteShebang(data, tx.installer.python(tx.prefix))
		tx.placed = append(tx.placed, dst)
		if err := fsutil.WriteFileAtomic(dst, data, perm|0o111); err != nil {
			return err
		}
	} else {
		tx.placed = append(tx.placed, dst)
		fellBack, err := tx.installer.LinkMode.place(src, dst, perm)
		if err != nil {
			return err
		}
		tx.fellBack = tx.fellBack || fellBack
	}
	return tx.addRecord(dst)
}

func (tx *transaction) addRecord(path string) error {
	digest, size, err := fsutil.FileDigest(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(tx.site, path)
	if err != nil {
		return err
	}
	tx.record = append(tx.record, sitepackages.RecordEntry{Path: filepath.ToSlash(rel), Digest: digest, Size: size})
	return nil
}

func (tx *transaction) writeFile(name string, data []byte) error {
	path := filepath.Join(tx.distInfo, name)
	tx.placed = append(tx.placed, path)
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return err
	}
	return tx.addRecord(path)
}

func (tx *transaction) writeMetadata(item Item) error {
	if err := os.MkdirAll(tx.distInfo, 0o755); err != nil {
		return err
	}
	name := tx.installer.Name
	if name == "" {
		name = DefaultInstallerName
	}
	if err := tx.writeFile("INSTALLER", []byte(name+"\n")); err != nil {
		return err
	}
	if item.Requested {
		if err := tx.writeFile("REQUESTED", nil); err != nil {
			return err
		}
	}

	req := item.Wheel.Requirement
	direct := directURL(item)
	if direct != nil {
		data, err := direct.Marshal()
		if err != nil {
			return err
		}
		if err := tx.writeFile(sitepackages.DirectURLFile, data); err != nil {
			return err
		}
	}

	if req.Source.Kind.IsLocal() {
		fp := item.Fingerprint
		if fp == "" {
			fingerprint := tx.installer.Fingerprint
			if fingerprint == nil {
				fingerprint = fsutil.FingerprintFunc(fsutil.TreeFingerprint)
			}
			var err error
			if fp, err = fingerprint.Fingerprint(req.Source.Path); err != nil {
				return err
			}
		}
		stamp := &sitepackages.SourceStamp{Path: filepath.Clean(req.Source.Path), Fingerprint: fp}
		data, err := stamp.Marshal()
		if err != nil {
			return err
		}
		if err := tx.writeFile(sitepackages.SourceFile, data); err != nil {
			return err
		}
	}
	return nil
}

// commit writes RECORD, listing itself without a digest.
func (tx *transaction) commit() error {
	rel, err := filepath.Rel(tx.site, filepath.Join(tx.distInfo, sitepackages.RecordFile))
	if err != nil {
		return err
	}
	sort.Slice(tx.record, func(i, j int) bool { return tx.record[i].Path < tx.record[j].Path })
	entries := append(tx.record, sitepackages.RecordEntry{Path: filepath.ToSlash(rel), Size: -1})

	var buf bytes.Buffer
	if err := sitepackages.WriteRecord(&buf, entries); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(tx.distInfo, sitepackages.RecordFile), buf.Bytes(), 0o644)
}

// rollback removes everything placed so far. Best effort.
func (tx *transaction) rollback() {
	dirs := make(map[string]bool)
	for _, p := range tx.placed {
		os.Remove(p)
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		stop := tx.site
		if errors.ValidateWithin(tx.site, dir) != nil {
			stop = tx.prefix
		}
		fsutil.RemoveEmptyParents(dir, stop)
	}
}

// directURL builds direct_url.json for non-registry installs.
func directURL(item Item) *sitepackages.DirectURL {
	req := item.Wheel.Requirement
	switch req.Source.Kind {
	case dist.SourceURL:
		d := &sitepackages.DirectURL{URL: req.Source.URL, ArchiveInfo: &sitepackages.ArchiveInfo{}}
		if item.Wheel.Hash != "" {
			d.ArchiveInfo.Hash = "sha256=" + item.Wheel.Hash
			d.ArchiveInfo.Hashes = map[string]string{"sha256": item.Wheel.Hash}
		}
		return d
	case dist.SourcePath:
		return &sitepackages.DirectURL{URL: sitepackages.FileURL(req.Source.Path), ArchiveInfo: &sitepackages.ArchiveInfo{}}
	case dist.SourceDirectory, dist.SourceEditable:
		d := &sitepackages.DirectURL{URL: sitepackages.FileURL(req.Source.Path), DirInfo: &sitepackages.DirInfo{}}
		d.DirInfo.Editable = item.Editable || req.Source.Kind == dist.SourceEditable
		return d
	}
	return nil
}

func (in *Installer) python(prefix string) string {
	if in.Python != "" {
		return in.Python
	}
	return filepath.Join(prefix, "bin", "python")
}

// rewriteShebang replaces the "#!python" placeholder used by wheels.
func rewriteShebang(data []byte, python string) []byte {
	line, rest, ok := bytes.Cut(data, []byte("\n"))
	if !ok {
		return data
	}
	trimmed := bytes.TrimRight(line, "\r")
	if string(trimmed) != "#!python" && string(trimmed) != "#!pythonw" {
		return data
	}
	out := append([]byte("#!"+python), line[len(trimmed):]...)
	out = append(out, '\n')
	return append(out, rest...)
}
