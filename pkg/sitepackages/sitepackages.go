package sitepackages

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/matzehuels/stackpip/pkg/dist"
)

// SitePackages is a snapshot of one environment's installed distributions.
// It is safe for concurrent use.
type SitePackages struct {
	root string

	mu          sync.RWMutex
	byName      map[dist.PackageName]*Distribution
	duplicates  map[dist.PackageName][]*Distribution
	diagnostics []Diagnostic
}

// New returns an empty snapshot rooted at root.
func New(root string) *SitePackages {
	return &SitePackages{
		root:       root,
		byName:     make(map[dist.PackageName]*Distribution),
		duplicates: make(map[dist.PackageName][]*Distribution),
	}
}

// Root returns the site-packages directory.
func (s *SitePackages) Root() string { return s.root }

// Get returns the live distribution registered for name.
func (s *SitePackages) Get(name dist.PackageName) (*Distribution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byName[name]
	return d, ok
}

// Duplicates returns the extra distributions found for name beyond the live
// one. A non-empty result means the environment is inconsistent for name.
func (s *SitePackages) Duplicates(name dist.PackageName) []*Distribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Distribution(nil), s.duplicates[name]...)
}

// Distributions returns every live distribution sorted by name.
func (s *SitePackages) Distributions() []*Distribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Distribution, 0, len(s.byName))
	for _, d := range s.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of live distributions.
func (s *SitePackages) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}

// Diagnostics returns the anomalies recorded while scanning.
func (s *SitePackages) Diagnostics() []Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Diagnostic(nil), s.diagnostics...)
}

// Add registers d, replacing any live entry of the same name. Used after an
// install to keep the snapshot current without rescanning.
func (s *SitePackages) Add(d *Distribution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(d)
}

func (s *SitePackages) add(d *Distribution) {
	if prev, ok := s.byName[d.Name]; ok && prev.Path != d.Path {
		s.duplicates[d.Name] = append(s.duplicates[d.Name], prev)
	}
	s.byName[d.Name] = d
}

// Remove unregisters the distribution at the given .dist-info path. If a
// duplicate of the same name remains, it becomes the live entry.
func (s *SitePackages) Remove(d *Distribution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dups := s.duplicates[d.Name]
	for i, dup := range dups {
		if dup.Path == d.Path {
			dups = append(dups[:i], dups[i+1:]...)
			break
		}
	}

	if live, ok := s.byName[d.Name]; ok && live.Path == d.Path {
		delete(s.byName, d.Name)
		if len(dups) > 0 {
			s.byName[d.Name] = dups[0]
			dups = dups[1:]
		}
	}

	if len(dups) == 0 {
		delete(s.duplicates, d.Name)
	} else {
		s.duplicates[d.Name] = dups
	}
}

func (s *SitePackages) diagnose(d Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)
}

// Check evaluates cross-distribution consistency: Requires-Python against
// pythonVersion (skipped when empty) and unconditional Requires-Dist entries
// against the other installed distributions.
func (s *SitePackages) Check(pythonVersion string) []Diagnostic {
	var out []Diagnostic
	for _, d := range s.Distributions() {
		if !d.Usable() {
			continue
		}
		if pythonVersion != "" && d.RequiresPython != "" {
			if spec, err := dist.ParseSpecifier(d.RequiresPython); err == nil && !spec.Contains(pythonVersion) {
				out = append(out, Diagnostic{
					Kind:    IncompatiblePython,
					Name:    d.Name,
					Paths:   []string{d.Path},
					Message: "requires Python " + d.RequiresPython + ", environment has " + pythonVersion,
				})
			}
		}
		for _, raw := range d.RequiresDist {
			req, err := dist.ParsePEP508(raw)
			if err != nil || req.Marker != "" {
				// Conditional dependencies need marker evaluation.
				continue
			}
			dep, ok := s.Get(req.Name)
			switch {
			case !ok:
				out = append(out, Diagnostic{
					Kind:    MissingDependency,
					Name:    d.Name,
					Paths:   []string{d.Path},
					Message: "requires " + raw + ", which is not installed",
				})
			case req.Source.Kind == dist.SourceRegistry && !req.Specifier.IsEmpty() && !req.Specifier.Contains(dep.Version):
				out = append(out, Diagnostic{
					Kind:    IncompatibleDependency,
					Name:    d.Name,
					Paths:   []string{d.Path, dep.Path},
					Message: "requires " + raw + ", but " + dep.ID() + " is installed",
				})
			}
		}
	}
	return out
}

// EnvPrefix returns the environment root for a site-packages directory
// laid out as <prefix>/lib/pythonX.Y/site-packages. Other layouts use the
// site-packages directory itself.
func EnvPrefix(root string) string {
	site := filepath.Clean(root)
	if filepath.Base(site) != "site-packages" {
		return site
	}
	lib := filepath.Dir(filepath.Dir(site))
	if b := filepath.Base(lib); b != "lib" && b != "lib64" {
		return site
	}
	return filepath.Dir(lib)
}
