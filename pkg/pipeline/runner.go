package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackpip/pkg/build"
	"github.com/matzehuels/stackpip/pkg/cache"
	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/download"
	"github.com/matzehuels/stackpip/pkg/editable"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fetch"
	"github.com/matzehuels/stackpip/pkg/fsutil"
	"github.com/matzehuels/stackpip/pkg/inflight"
	"github.com/matzehuels/stackpip/pkg/install"
	"github.com/matzehuels/stackpip/pkg/observability"
	"github.com/matzehuels/stackpip/pkg/plan"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
	"github.com/matzehuels/stackpip/pkg/uninstall"
	"github.com/matzehuels/stackpip/pkg/wheelcache"
)

// Runner drives syncs against one environment.
//
// The environment snapshot and the fingerprints of local source trees are
// taken fresh for every call. A Runner serves one run at a time.
type Runner struct {
	SitePackages string
	Store        *wheelcache.Store
	Downloader   *download.Downloader
	Editables    *editable.Builder
	Installer    *install.Installer
	Cache        cache.Cache
	Reporter     observability.Reporter
	Logger       *log.Logger

	// BuildConcurrency bounds parallel editable builds
	// (default: DefaultBuildConcurrency).
	BuildConcurrency int
}

// NewRunner wires the default collaborators for the environment at
// sitePackages. The downloader and the editable builder share one in-flight
// registry. If c is nil, build caching is disabled.
func NewRunner(sitePackages string, store *wheelcache.Store, fetcher fetch.Fetcher, backend build.Backend, c cache.Cache, logger *log.Logger) (*Runner, error) {
	if sitePackages == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "site-packages directory is required")
	}
	if store == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "artifact store is required")
	}
	if c == nil {
		c = cache.Disabled()
	}
	if logger == nil {
		logger = log.Default()
	}

	registry := inflight.New[dist.Wheel]()

	dl := download.New(store, fetcher, backend, logger)
	dl.InFlight = registry

	eb := editable.NewBuilder(backend, store, logger)
	eb.InFlight = registry
	eb.Cache = c

	return &Runner{
		SitePackages: sitePackages,
		Store:        store,
		Downloader:   dl,
		Editables:    eb,
		Installer:    install.New(sitePackages, store, logger),
		Cache:        c,
		Reporter:     observability.NoopReporter{},
		Logger:       logger,
	}, nil
}

// SetReporter installs r on the runner and every collaborator.
func (r *Runner) SetReporter(rep observability.Reporter) {
	rep = observability.OrNoop(rep)
	r.Reporter = rep
	r.Downloader.Reporter = rep
	r.Editables.Reporter = rep
	r.Installer.Reporter = rep
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// run is the state of one Sync or Plan call.
type run struct {
	id     string
	logger *log.Logger
	fp     *fsutil.FingerprintCache
}

func (r *Runner) newRun() *run {
	id := uuid.NewString()
	return &run{
		id:     id,
		logger: r.Logger.With("run", id[:8]),
		fp:     fsutil.NewFingerprintCache(nil),
	}
}

// stage times fn and reports it to the stage hooks.
func (rn *run) stage(ctx context.Context, name string, fn func() error) (time.Duration, error) {
	observability.Stage().OnStageStart(ctx, name)
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	observability.Stage().OnStageComplete(ctx, name, elapsed, err)
	return elapsed, err
}

// Plan scans the environment and computes what Sync would do, without
// touching anything.
func (r *Runner) Plan(ctx context.Context, opts Options) (*Preview, error) {
	rn := r.newRun()
	site, p, _, err := r.plan(ctx, rn, opts)
	if err != nil {
		return nil, err
	}
	return &Preview{RunID: rn.id, Plan: p, Site: site}, nil
}

func (r *Runner) plan(ctx context.Context, rn *run, opts Options) (*sitepackages.SitePackages, *plan.Plan, Stats, error) {
	var stats Stats
	var site *sitepackages.SitePackages
	var err error

	stats.ScanTime, err = rn.stage(ctx, StageScan, func() error {
		site, err = sitepackages.Scan(ctx, r.SitePackages)
		return err
	})
	if err != nil {
		return nil, nil, stats, err
	}
	rn.logger.Info("scanned environment", "site", r.SitePackages, "distributions", site.Len(), "duration", stats.ScanTime)

	var p *plan.Plan
	stats.PlanTime, err = rn.stage(ctx, StagePlan, func() error {
		planner := plan.New(r.Store, rn.fp, opts.planOptions(), rn.logger)
		p, err = planner.Build(ctx, opts.Requirements, site)
		return err
	})
	if err != nil {
		return nil, nil, stats, err
	}
	rn.logger.Info("planned",
		"reuse", len(p.Reuse),
		"cached", len(p.Cached),
		"remote", len(p.Remote),
		"remove", len(p.Extraneous),
		"duration", stats.PlanTime)
	return site, p, stats, nil
}

// Sync makes the environment match opts.Requirements. Scan and planning
// failures are returned with a nil Report and nothing changed. Otherwise
// the Report is always returned; the error joins its failures.
func (r *Runner) Sync(ctx context.Context, opts Options) (*Report, error) {
	rn := r.newRun()
	site, p, stats, err := r.plan(ctx, rn, opts)
	if err != nil {
		return nil, err
	}
	r.Installer.Fingerprint = rn.fp
	r.Downloader.Options.FailFast = opts.FailFast

	report := &Report{RunID: rn.id, Diagnostics: site.Diagnostics()}
	reporter := observability.OrNoop(r.Reporter)
	for _, d := range report.Diagnostics {
		reporter.OnDiagnostic(d.Kind.String(), string(d.Name), d.Message)
	}
	for _, reused := range p.Reuse {
		report.Reused = append(report.Reused, reused.Distribution)
	}
	stats.Reused = len(p.Reuse)
	stats.Cached = len(p.Cached)

	// Fetch and build everything before touching the environment.
	var fetched fetchResult
	stats.FetchTime, _ = rn.stage(ctx, StageFetch, func() error {
		fetched = r.fetch(ctx, rn, p.Remote)
		return errorsOf(fetched.failures)
	})
	report.Failed = append(report.Failed, fetched.failures...)
	stats.Fetched = len(fetched.wheels) + len(fetched.editables)

	ready := make(map[dist.PackageName]bool)
	for _, c := range p.Cached {
		ready[c.Requirement.Name] = true
	}
	for _, w := range fetched.wheels {
		ready[w.Name()] = true
	}
	for _, e := range fetched.editables {
		ready[e.Resolved.Requirement.Name] = true
	}

	stats.UninstallTime, _ = rn.stage(ctx, StageUninstall, func() error {
		r.uninstall(ctx, rn, p, site, ready, report)
		return nil
	})

	stats.InstallTime, _ = rn.stage(ctx, StageInstall, func() error {
		items := make([]install.Item, 0, len(p.Cached)+len(fetched.wheels))
		for _, c := range p.Cached {
			items = append(items, install.Item{Wheel: c.Wheel, Requested: opts.requested(c.Requirement.Name)})
		}
		for _, w := range fetched.wheels {
			items = append(items, install.Item{Wheel: w, Requested: opts.requested(w.Name())})
		}
		r.install(ctx, rn, items, fetched.editables, site, report)
		return nil
	})

	report.Stats = stats
	rn.logger.Info("sync complete",
		"installed", len(report.Installed),
		"reused", len(report.Reused),
		"removed", len(report.Removed),
		"failed", len(report.Failed))
	return report, report.Err()
}

type fetchResult struct {
	wheels    []dist.Wheel
	editables []*editable.BuiltEditable
	failures  []Failure
}

// fetch materializes remote requirements. Regular requirements go through
// the downloader while editables are resolved and built alongside.
func (r *Runner) fetch(ctx context.Context, rn *run, reqs []dist.Requirement) fetchResult {
	var regular, editables []dist.Requirement
	for _, req := range reqs {
		if req.IsEditable() {
			editables = append(editables, req)
		} else {
			regular = append(regular, req)
		}
	}

	var (
		res fetchResult
		mu  sync.Mutex
		g   errgroup.Group
	)
	fail := func(req dist.Requirement, stage string, err error) {
		mu.Lock()
		res.failures = append(res.failures, Failure{Name: req.Name, Version: req.Version(), Stage: stage, Err: err})
		mu.Unlock()
		rn.logger.Error("could not materialize", "dist", req.ID(), "stage", stage, "err", err)
	}

	if len(regular) > 0 {
		g.Go(func() error {
			wheels, err := r.Downloader.Fetch(ctx, regular)
			mu.Lock()
			res.wheels = wheels
			mu.Unlock()
			byID := make(map[string]dist.Requirement, len(regular))
			for _, req := range regular {
				byID[req.ID()] = req
			}
			for _, fe := range download.FetchErrors(err) {
				fail(byID[fe.ID], StageFetch, fe.Err)
			}
			return nil
		})
	}

	if len(editables) > 0 {
		g.Go(func() error {
			var eg errgroup.Group
			limit := r.BuildConcurrency
			if limit <= 0 {
				limit = DefaultBuildConcurrency
			}
			eg.SetLimit(limit)
			for _, req := range editables {
				eg.Go(func() error {
					resolved, err := editable.Resolve(req, rn.fp)
					if err != nil {
						fail(req, StageBuild, err)
						return nil
					}
					built, err := r.Editables.Build(ctx, resolved)
					if err != nil {
						fail(req, StageBuild, err)
						return nil
					}
					mu.Lock()
					res.editables = append(res.editables, built)
					mu.Unlock()
					return nil
				})
			}
			return eg.Wait()
		})
	}
	g.Wait()
	return res
}

// uninstall removes the plan's extraneous distributions, except for
// predecessors whose replacement is not ready.
func (r *Runner) uninstall(ctx context.Context, rn *run, p *plan.Plan, site *sitepackages.SitePackages, ready map[dist.PackageName]bool, report *Report) {
	for _, rm := range p.Extraneous {
		d := rm.Distribution
		if rm.Replaced && !ready[d.Name] {
			rn.logger.Warn("keeping installed version, replacement unavailable", "dist", d.ID())
			report.Kept = append(report.Kept, d)
			continue
		}
		res, err := uninstall.Uninstall(ctx, d, uninstall.Options{
			Prefix:   r.Installer.Prefix,
			Reporter: r.Reporter,
			Logger:   rn.logger,
		})
		if err != nil {
			report.Failed = append(report.Failed, Failure{Name: d.Name, Version: d.Version, Stage: StageUninstall, Err: err})
			rn.logger.Error("uninstall failed", "dist", d.ID(), "err", err)
			continue
		}
		site.Remove(d)
		report.Removed = append(report.Removed, d)
		rn.logger.Info("uninstalled", "dist", d.ID(), "files", len(res.Removed), "skipped", len(res.Skipped))
	}
}

// install places wheels and editables and records them in the snapshot.
func (r *Runner) install(ctx context.Context, rn *run, items []install.Item, editables []*editable.BuiltEditable, site *sitepackages.SitePackages, report *Report) {
	if len(items) > 0 {
		res, err := r.Installer.Install(ctx, items)
		for _, d := range res.Installed {
			site.Add(d)
			report.Installed = append(report.Installed, d)
		}
		report.CompileErrors = append(report.CompileErrors, res.CompileErrors...)
		for _, ie := range install.InstallErrors(err) {
			report.Failed = append(report.Failed, Failure{Name: ie.Name, Version: versionOf(items, ie.Name), Stage: StageInstall, Err: ie.Err})
		}
		if len(res.CompileErrors) > 0 {
			rn.logger.Warn("bytecode compilation failed for some files", "files", len(res.CompileErrors))
		}
	}

	for _, b := range editables {
		installed, err := editable.Install(ctx, r.Installer, b)
		if err != nil {
			report.Failed = append(report.Failed, Failure{Name: b.Resolved.Requirement.Name, Version: b.Metadata.Version, Stage: StageInstall, Err: err})
			continue
		}
		site.Add(installed.Distribution)
		report.Installed = append(report.Installed, installed.Distribution)
	}
	for _, d := range report.Installed {
		rn.logger.Info("installed", "dist", d.ID())
	}
}

func versionOf(items []install.Item, name dist.PackageName) string {
	for _, it := range items {
		if it.Wheel.Name() == name {
			return it.Wheel.Version()
		}
	}
	return ""
}

func errorsOf(failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodeFetch, "%d distributions could not be fetched", len(failures))
}
