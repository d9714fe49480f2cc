package download

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackpip/pkg/build"
	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fetch"
	"github.com/matzehuels/stackpip/pkg/inflight"
	"github.com/matzehuels/stackpip/pkg/observability"
	"github.com/matzehuels/stackpip/pkg/wheelcache"
)

// DefaultConcurrency is the number of requirements fetched at once.
const DefaultConcurrency = 8

// Options configures a Downloader.
type Options struct {
	Concurrency int  // Maximum parallel fetches (default: 8)
	FailFast    bool // Cancel remaining fetches on the first failure
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// FetchError reports that one requirement could not be materialized.
type FetchError struct {
	ID   string
	Name dist.PackageName
	Err  error
}

func (e *FetchError) Error() string { return fmt.Sprintf("%s: %v", e.ID, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// FetchErrors extracts every *FetchError from a joined error.
func FetchErrors(err error) []*FetchError {
	var out []*FetchError
	var walk func(error)
	walk = func(err error) {
		var fe *FetchError
		switch x := err.(type) {
		case nil:
		case interface{ Unwrap() []error }:
			for _, e := range x.Unwrap() {
				walk(e)
			}
		default:
			if stderrors.As(err, &fe) {
				out = append(out, fe)
			}
		}
	}
	walk(err)
	return out
}

// Downloader fetches and builds wheels into a wheelcache.Store.
// A Downloader is safe for concurrent use.
type Downloader struct {
	Fetcher  fetch.Fetcher
	Backend  build.Backend
	Store    *wheelcache.Store
	InFlight *inflight.Registry[dist.Wheel]
	Reporter observability.Reporter
	Logger   *log.Logger
	Options  Options
}

// New returns a Downloader with its own in-flight registry. Share a
// registry across components by assigning InFlight afterwards.
func New(store *wheelcache.Store, fetcher fetch.Fetcher, backend build.Backend, logger *log.Logger) *Downloader {
	if logger == nil {
		logger = log.Default()
	}
	return &Downloader{
		Fetcher:  fetcher,
		Backend:  backend,
		Store:    store,
		InFlight: inflight.New[dist.Wheel](),
		Reporter: observability.NoopReporter{},
		Logger:   logger,
	}
}

// Fetch materializes every requirement. Wheels are returned in input order
// for the requirements that succeeded; failures are joined *FetchErrors.
func (d *Downloader) Fetch(ctx context.Context, reqs []dist.Requirement) ([]dist.Wheel, error) {
	opts := d.Options.WithDefaults()

	var g *errgroup.Group
	gctx := ctx
	if opts.FailFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}
	g.SetLimit(opts.Concurrency)

	var mu sync.Mutex
	var failures []error
	wheels := make([]*dist.Wheel, len(reqs))

	for i, req := range reqs {
		g.Go(func() error {
			w, err := d.FetchOne(gctx, req)
			if err != nil {
				fe := &FetchError{ID: req.ID(), Name: req.Name, Err: err}
				mu.Lock()
				failures = append(failures, fe)
				mu.Unlock()
				if opts.FailFast {
					return fe
				}
				return nil
			}
			wheels[i] = &w
			return nil
		})
	}
	g.Wait()

	out := make([]dist.Wheel, 0, len(reqs))
	for _, w := range wheels {
		if w != nil {
			out = append(out, *w)
		}
	}
	return out, stderrors.Join(failures...)
}

// FetchOne materializes a single requirement, sharing the work with any
// concurrent caller for the same identity.
func (d *Downloader) FetchOne(ctx context.Context, req dist.Requirement) (dist.Wheel, error) {
	registry := d.InFlight
	if registry == nil {
		registry = inflight.New[dist.Wheel]()
	}
	w, shared, err := registry.Do(ctx, req.ID(), func(ctx context.Context) (dist.Wheel, error) {
		return d.fetch(ctx, req)
	})
	if shared {
		d.logger().Debug("shared in-flight fetch", "dist", req.ID())
	}
	return w, err
}

func (d *Downloader) fetch(ctx context.Context, req dist.Requirement) (dist.Wheel, error) {
	if d.Store == nil {
		return dist.Wheel{}, errors.New(errors.ErrCodeInternal, "downloader has no artifact store")
	}
	if err := ctx.Err(); err != nil {
		return dist.Wheel{}, err
	}
	if w, ok := d.Store.Lookup(ctx, req); ok {
		return w, nil
	}

	start := time.Now()
	var (
		w   dist.Wheel
		err error
	)
	switch req.Source.Kind {
	case dist.SourceDirectory:
		w, err = d.buildTree(ctx, req, req.Source.Path)
	case dist.SourceEditable:
		err = errors.New(errors.ErrCodeUnsupported, "%s: editables are built by the editable resolver", req.ID())
	default:
		w, err = d.download(ctx, req)
	}
	if err != nil {
		return dist.Wheel{}, err
	}
	d.logger().Info("fetched", "dist", req.ID(), "wheel", w.Filename, "duration", time.Since(start).Round(time.Millisecond))
	return w, nil
}

func (d *Downloader) download(ctx context.Context, req dist.Requirement) (dist.Wheel, error) {
	if d.Fetcher == nil {
		return dist.Wheel{}, errors.New(errors.ErrCodeInternal, "downloader has no fetcher")
	}
	id := req.ID()
	reporter := observability.OrNoop(d.Reporter)

	resp, err := d.Fetcher.Fetch(ctx, req)
	if err != nil {
		return dist.Wheel{}, err
	}
	defer resp.Body.Close()

	kind := resp.Kind()
	if kind == dist.ArchiveUnknown {
		return dist.Wheel{}, errors.New(errors.ErrCodeUnsupported, "%s: unrecognized artifact %q", id, resp.Filename)
	}

	tmp, err := d.Store.TempFile("download-*")
	if err != nil {
		return dist.Wheel{}, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	reporter.OnDownloadStart(id, resp.Size)
	digests := dist.NewDigester(req.Hashes)
	body := io.TeeReader(&progressReader{r: resp.Body, id: id, reporter: reporter}, digests)
	_, err = io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		err = errors.Wrap(errors.ErrCodeNetwork, err, "download %s", id)
	}
	reporter.OnDownloadComplete(id, err)
	if err != nil {
		return dist.Wheel{}, err
	}

	if err := digests.Verify(req.Hashes); err != nil {
		return dist.Wheel{}, errors.Wrap(errors.ErrCodeHashMismatch, err, "%s", resp.Filename)
	}

	if kind == dist.ArchiveWheel {
		return d.Store.Promote(tmpName, req, resp.Filename)
	}
	return d.buildSdist(ctx, req, tmpName, resp.Filename)
}

func (d *Downloader) buildSdist(ctx context.Context, req dist.Requirement, archive, filename string) (dist.Wheel, error) {
	srcRoot, err := d.Store.TempDir("sdist-*")
	if err != nil {
		return dist.Wheel{}, err
	}
	defer os.RemoveAll(srcRoot)

	srcDir, err := unpackSdist(ctx, archive, filename, srcRoot)
	if err != nil {
		return dist.Wheel{}, err
	}
	return d.buildTree(ctx, req, srcDir)
}

// buildTree runs the backend on srcDir and promotes the result.
func (d *Downloader) buildTree(ctx context.Context, req dist.Requirement, srcDir string) (dist.Wheel, error) {
	if d.Backend == nil {
		return dist.Wheel{}, errors.New(errors.ErrCodeBuild, "%s: no build backend configured", req.ID())
	}
	outDir, err := d.Store.TempDir("build-*")
	if err != nil {
		return dist.Wheel{}, err
	}
	defer os.RemoveAll(outDir)

	reporter := observability.OrNoop(d.Reporter)
	reporter.OnBuildStart(req.ID())
	path, err := d.Backend.BuildWheel(ctx, srcDir, outDir)
	reporter.OnBuildComplete(req.ID(), err)
	if err != nil {
		return dist.Wheel{}, err
	}

	w, err := d.Store.Promote(path, req, filepath.Base(path))
	if err != nil {
		return dist.Wheel{}, err
	}
	return w, nil
}

func (d *Downloader) logger() *log.Logger {
	if d.Logger == nil {
		return log.Default()
	}
	return d.Logger
}

// progressReader reports bytes as they are read.
type progressReader struct {
	r        io.Reader
	id       string
	reporter observability.Reporter
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.reporter.OnDownloadProgress(p.id, int64(n))
	}
	return n, err
}
