// Package plan diffs a resolved requirement set against an environment.
//
// [Planner.Build] is a pure function of its inputs: the requirements, a
// [sitepackages.SitePackages] snapshot and a local artifact [Index]. It
// partitions the requirements into three disjoint groups and lists the
// installed distributions that have to go:
//
//   - Reuse: an installed distribution already satisfies the requirement
//   - Cached: a built wheel is in the local artifact cache, install only
//   - Remote: must be downloaded and/or built first
//   - Extraneous: installed but undesired, or superseded by a requirement
//
// Every requirement lands in exactly one of Reuse, Cached or Remote.
// Malformed or duplicate requirements fail the whole plan before anything
// is categorized.
package plan

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fsutil"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
)

// Mode selects what happens to installed distributions that no requirement
// mentions.
type Mode int

const (
	// ModeSync makes the environment match the requirements exactly.
	ModeSync Mode = iota
	// ModeInstall leaves unrelated distributions alone.
	ModeInstall
)

func (m Mode) String() string {
	if m == ModeInstall {
		return "install"
	}
	return "sync"
}

// Options configures a Planner.
type Options struct {
	Mode Mode

	// Reinstall replaces every installed distribution that is requested.
	Reinstall bool
	// ReinstallPackages replaces only the named ones.
	ReinstallPackages []dist.PackageName
}

func (o Options) reinstall(name dist.PackageName) bool {
	if o.Reinstall {
		return true
	}
	for _, n := range o.ReinstallPackages {
		if dist.NormalizeName(string(n)) == name {
			return true
		}
	}
	return false
}

// Index answers whether a built artifact for a requirement is available
// locally. *wheelcache.Store implements it.
type Index interface {
	Lookup(ctx context.Context, req dist.Requirement) (dist.Wheel, bool)
}

// Reused pairs a requirement with the installed distribution serving it.
type Reused struct {
	Requirement  dist.Requirement
	Distribution *sitepackages.Distribution
}

// Cached pairs a requirement with the local wheel that will be installed.
type Cached struct {
	Requirement dist.Requirement
	Wheel       dist.Wheel
}

// Removal is an installed distribution the plan uninstalls.
type Removal struct {
	Distribution *sitepackages.Distribution

	// Replaced is true when a requirement of the same name will install a
	// successor; false when the project is no longer wanted.
	Replaced bool
	Reason   string
}

// Plan is the outcome of Planner.Build.
type Plan struct {
	Reuse      []Reused
	Cached     []Cached
	Remote     []dist.Requirement
	Extraneous []Removal

	// Reasons records why each replaced distribution could not be reused.
	Reasons map[dist.PackageName]sitepackages.SatisfiesResult
}

// IsEmpty reports whether applying the plan changes nothing.
func (p *Plan) IsEmpty() bool {
	return len(p.Cached) == 0 && len(p.Remote) == 0 && len(p.Extraneous) == 0
}

// Installs returns how many distributions the plan installs.
func (p *Plan) Installs() int { return len(p.Cached) + len(p.Remote) }

// Predecessors returns the removals that a requirement named name replaces.
func (p *Plan) Predecessors(name dist.PackageName) []*sitepackages.Distribution {
	var out []*sitepackages.Distribution
	for _, r := range p.Extraneous {
		if r.Replaced && r.Distribution.Name == name {
			out = append(out, r.Distribution)
		}
	}
	return out
}

// Planner builds Plans. The zero value plans with no artifact cache and
// default options.
type Planner struct {
	Index       Index
	Fingerprint fsutil.Fingerprinter
	Options     Options
	Logger      *log.Logger
}

// New returns a Planner.
func New(index Index, fp fsutil.Fingerprinter, opts Options, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.Default()
	}
	return &Planner{Index: index, Fingerprint: fp, Options: opts, Logger: logger}
}

// Build computes the plan for reqs against site. It returns a fatal error,
// and no plan, when the requirement set is malformed.
func (p *Planner) Build(ctx context.Context, reqs []dist.Requirement, site *sitepackages.SitePackages) (*Plan, error) {
	if site == nil {
		return nil, errors.New(errors.ErrCodePlanning, "no environment snapshot")
	}
	reqs, err := normalize(reqs)
	if err != nil {
		return nil, err
	}
	fp := p.Fingerprint
	if fp == nil {
		fp = fsutil.NewFingerprintCache(nil)
	}

	plan := &Plan{Reasons: make(map[dist.PackageName]sitepackages.SatisfiesResult)}
	desired := make(map[dist.PackageName]bool, len(reqs))

	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		desired[req.Name] = true

		installed, ok := site.Get(req.Name)
		if !ok {
			p.categorize(ctx, plan, req)
			continue
		}

		result := p.check(req, installed, site.Duplicates(req.Name), fp)
		if sitepackages.IsSatisfied(result) {
			plan.Reuse = append(plan.Reuse, Reused{Requirement: req, Distribution: installed})
			continue
		}

		plan.Reasons[req.Name] = result
		for _, d := range append([]*sitepackages.Distribution{installed}, site.Duplicates(req.Name)...) {
			plan.Extraneous = append(plan.Extraneous, Removal{Distribution: d, Replaced: true, Reason: result.String()})
		}
		p.categorize(ctx, plan, req)
	}

	if p.Options.Mode == ModeSync {
		for _, d := range site.Distributions() {
			if desired[d.Name] {
				continue
			}
			for _, x := range append([]*sitepackages.Distribution{d}, site.Duplicates(d.Name)...) {
				plan.Extraneous = append(plan.Extraneous, Removal{Distribution: x, Reason: "not in the requirement set"})
			}
		}
	}

	sort.SliceStable(plan.Extraneous, func(i, j int) bool {
		a, b := plan.Extraneous[i].Distribution, plan.Extraneous[j].Distribution
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Path < b.Path
	})

	p.logger().Debug("planned",
		"reuse", len(plan.Reuse),
		"cached", len(plan.Cached),
		"remote", len(plan.Remote),
		"extraneous", len(plan.Extraneous),
		"mode", p.Options.Mode)
	return plan, nil
}

// check decides whether installed can stay. Anything that is not a clean,
// unambiguous match is reported as a reason to replace.
func (p *Planner) check(req dist.Requirement, installed *sitepackages.Distribution, dups []*sitepackages.Distribution, fp fsutil.Fingerprinter) sitepackages.SatisfiesResult {
	if len(dups) > 0 {
		return sitepackages.Unusable{Reason: fmt.Sprintf("%d installed copies of %s", len(dups)+1, req.Name)}
	}
	if p.Options.reinstall(req.Name) {
		return sitepackages.Mismatch{Reason: "reinstall requested"}
	}
	return sitepackages.Satisfies(req, installed, fp)
}

// categorize places a requirement that cannot be reused into Cached or
// Remote. Local source trees are always rebuilt.
func (p *Planner) categorize(ctx context.Context, plan *Plan, req dist.Requirement) {
	switch req.Source.Kind {
	case dist.SourceDirectory, dist.SourceEditable:
		plan.Remote = append(plan.Remote, req)
		return
	}
	if p.Index != nil {
		if w, ok := p.Index.Lookup(ctx, req); ok {
			plan.Cached = append(plan.Cached, Cached{Requirement: req, Wheel: w})
			return
		}
	}
	plan.Remote = append(plan.Remote, req)
}

func (p *Planner) logger() *log.Logger {
	if p.Logger == nil {
		return log.Default()
	}
	return p.Logger
}

// normalize returns reqs with PEP 503 names, enforcing the preconditions
// that make a plan meaningful.
func normalize(reqs []dist.Requirement) ([]dist.Requirement, error) {
	out := make([]dist.Requirement, len(reqs))
	seen := make(map[dist.PackageName]dist.Requirement, len(reqs))
	for i, req := range reqs {
		req.Name = dist.NormalizeName(string(req.Name))
		if err := req.Validate(); err != nil {
			return nil, errors.Wrap(errors.ErrCodePlanning, err, "invalid requirement %s", req)
		}
		if prev, ok := seen[req.Name]; ok {
			return nil, errors.New(errors.ErrCodeDuplicateRequirement, "%s is required twice (%s and %s)", req.Name, prev, req)
		}
		seen[req.Name] = req
		out[i] = req
	}
	return out, nil
}
