package pipeline

import (
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/install"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
)

// Failure is one distribution the run could not handle.
type Failure struct {
	Name    dist.PackageName
	Version string
	Stage   string
	Err     error
}

func (f Failure) Error() string {
	id := string(f.Name)
	if f.Version != "" {
		id += "==" + f.Version
	}
	return fmt.Sprintf("%s %s: %v", f.Stage, id, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Report is what a sync did. It is returned even when some distributions
// failed.
type Report struct {
	RunID string

	Installed []*sitepackages.Distribution
	Reused    []*sitepackages.Distribution
	Removed   []*sitepackages.Distribution
	Kept      []*sitepackages.Distribution // predecessors whose replacement failed
	Failed    []Failure

	Diagnostics   []sitepackages.Diagnostic
	CompileErrors []install.CompileError
	Stats         Stats
}

// Err joins every failure, or returns nil when there were none.
func (r *Report) Err() error {
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return stderrors.Join(errs...)
}

// ChangeKind classifies an entry of Report.Changes.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Replaced
	Reinstalled
)

func (k ChangeKind) Symbol() string {
	switch k {
	case Added:
		return "+"
	case Removed:
		return "-"
	case Replaced:
		return "~"
	}
	return "*"
}

// Change is one line of the modification summary.
type Change struct {
	Kind ChangeKind
	Name dist.PackageName
	From string
	To   string
}

func (c Change) String() string {
	switch c.Kind {
	case Added, Reinstalled:
		return fmt.Sprintf("%s %s==%s", c.Kind.Symbol(), c.Name, c.To)
	case Removed:
		return fmt.Sprintf("%s %s==%s", c.Kind.Symbol(), c.Name, c.From)
	}
	return fmt.Sprintf("%s %s %s -> %s", c.Kind.Symbol(), c.Name, c.From, c.To)
}

// Changes pairs removals with installs of the same project and returns the
// summary sorted by name.
func (r *Report) Changes() []Change {
	removed := make(map[dist.PackageName]*sitepackages.Distribution)
	for _, d := range r.Removed {
		removed[d.Name] = d
	}

	var out []Change
	for _, d := range r.Installed {
		prev, ok := removed[d.Name]
		switch {
		case !ok:
			out = append(out, Change{Kind: Added, Name: d.Name, To: d.Version})
		case prev.Version == d.Version:
			out = append(out, Change{Kind: Reinstalled, Name: d.Name, From: prev.Version, To: d.Version})
		default:
			out = append(out, Change{Kind: Replaced, Name: d.Name, From: prev.Version, To: d.Version})
		}
		delete(removed, d.Name)
	}
	for _, d := range removed {
		out = append(out, Change{Kind: Removed, Name: d.Name, From: d.Version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
