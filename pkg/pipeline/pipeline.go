// Package pipeline runs the installation engine end to end.
//
// A [Runner] owns the collaborators of one environment (artifact store,
// downloader, editable builder, installer) and drives them through the
// stages of a sync:
//
//  1. Scan: snapshot site-packages
//  2. Plan: diff the requirements against the snapshot
//  3. Fetch: download and build remote requirements and editables
//  4. Uninstall: remove extraneous distributions
//  5. Install: place cached and fetched wheels, then compile bytecode
//
// Scan and plan failures abort the run before the environment is touched.
// From the fetch stage on, failures are per distribution: they are recorded
// in the [Report] and the rest of the run continues. A distribution whose
// replacement could not be fetched is kept installed.
//
// # Usage
//
//	runner, err := pipeline.NewRunner(site, store, fetcher, backend, nil, logger)
//	report, err := runner.Sync(ctx, pipeline.Options{Requirements: reqs})
//	for _, c := range report.Changes() {
//	    fmt.Println(c)
//	}
package pipeline

import (
	"time"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/plan"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
)

// DefaultBuildConcurrency bounds parallel editable builds.
const DefaultBuildConcurrency = 4

// Stage names reported to observability hooks and in failures.
const (
	StageScan      = "scan"
	StagePlan      = "plan"
	StageFetch     = "fetch"
	StageBuild     = "build"
	StageUninstall = "uninstall"
	StageInstall   = "install"
	StageCompile   = "compile"
)

// Options describes one run.
type Options struct {
	// Requirements is the resolved requirement set, one entry per project.
	Requirements []dist.Requirement

	Mode              plan.Mode
	Reinstall         bool
	ReinstallPackages []dist.PackageName

	// Requested names the top-level requirements; they get a REQUESTED
	// marker. Nil marks every requirement as requested.
	Requested []dist.PackageName

	// FailFast cancels outstanding fetches after the first failure.
	FailFast bool
}

func (o Options) planOptions() plan.Options {
	return plan.Options{
		Mode:              o.Mode,
		Reinstall:         o.Reinstall,
		ReinstallPackages: o.ReinstallPackages,
	}
}

func (o Options) requested(name dist.PackageName) bool {
	if o.Requested == nil {
		return true
	}
	for _, n := range o.Requested {
		if dist.NormalizeName(string(n)) == name {
			return true
		}
	}
	return false
}

// Stats contains run statistics.
type Stats struct {
	Reused        int
	Cached        int
	Fetched       int
	ScanTime      time.Duration
	PlanTime      time.Duration
	FetchTime     time.Duration
	UninstallTime time.Duration
	InstallTime   time.Duration
}

// Preview is the outcome of a dry run.
type Preview struct {
	RunID string
	Plan  *plan.Plan
	Site  *sitepackages.SitePackages
}
