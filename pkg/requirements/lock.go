package requirements

import (
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
)

// lockFile is the subset of PEP 751 read by ParseLock.
type lockFile struct {
	LockVersion string        `toml:"lock-version"`
	Packages    []lockPackage `toml:"packages"`
}

type lockPackage struct {
	Name      string         `toml:"name"`
	Version   string         `toml:"version"`
	Marker    string         `toml:"marker"`
	Wheels    []lockArtifact `toml:"wheels"`
	Sdist     *lockArtifact  `toml:"sdist"`
	Archive   *lockArtifact  `toml:"archive"`
	Directory *lockDirectory `toml:"directory"`
	VCS       *struct {
		URL string `toml:"url"`
	} `toml:"vcs"`
}

type lockArtifact struct {
	Name   string            `toml:"name"`
	URL    string            `toml:"url"`
	Path   string            `toml:"path"`
	Hashes map[string]string `toml:"hashes"`
}

type lockDirectory struct {
	Path     string `toml:"path"`
	Editable bool   `toml:"editable"`
}

// ParseLock parses a PEP 751 lock file. Each package becomes one
// requirement pinned to a single artifact: a pure-Python wheel when one
// is listed, otherwise the first wheel, then the sdist or archive. VCS
// sources are not supported.
func ParseLock(r io.Reader, base string) ([]dist.Requirement, error) {
	var lf lockFile
	if _, err := toml.NewDecoder(r).Decode(&lf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "parse lock file")
	}
	if lf.LockVersion != "" && !strings.HasPrefix(lf.LockVersion, "1.") && lf.LockVersion != "1" {
		return nil, errors.New(errors.ErrCodeUnsupported, "lock-version %s is not supported", lf.LockVersion)
	}

	reqs := make([]dist.Requirement, 0, len(lf.Packages))
	for i, p := range lf.Packages {
		req, err := p.requirement(base)
		if err != nil {
			return nil, errors.Wrap(errors.GetCode(err), err, "packages[%d] %s", i, p.Name)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (p lockPackage) requirement(base string) (dist.Requirement, error) {
	if p.Name == "" {
		return dist.Requirement{}, errors.New(errors.ErrCodeInvalidRequirement, "missing name")
	}
	req := dist.Requirement{Name: dist.NormalizeName(p.Name), Marker: p.Marker}
	if p.Version != "" {
		spec, err := dist.ParseSpecifier("==" + p.Version)
		if err != nil {
			return req, err
		}
		req.Specifier = spec
	}

	switch {
	case p.VCS != nil:
		return req, errors.New(errors.ErrCodeUnsupported, "vcs source %s", p.VCS.URL)
	case p.Directory != nil:
		src, err := localSource(absPath(p.Directory.Path, base), p.Directory.Editable)
		if err != nil {
			return req, err
		}
		req.Source = src
		return req, nil
	case len(p.Wheels) > 0:
		return p.artifact(req, pickWheel(p.Wheels), base, dist.SourceRegistry)
	case p.Sdist != nil:
		return p.artifact(req, *p.Sdist, base, dist.SourceURL)
	case p.Archive != nil:
		return p.artifact(req, *p.Archive, base, dist.SourceURL)
	}
	return req, errors.New(errors.ErrCodeInvalidRequirement, "no installable artifact")
}

// artifact pins req to a, which is a URL or a lock-relative path. Wheels
// keep the registry kind since their URL is only a download location;
// sdists and archives are direct references.
func (p lockPackage) artifact(req dist.Requirement, a lockArtifact, base string, kind dist.SourceKind) (dist.Requirement, error) {
	for algo, digest := range a.Hashes {
		req.Hashes = append(req.Hashes, dist.Hash{Algorithm: strings.ToLower(algo), Digest: strings.ToLower(digest)})
	}
	sort.Slice(req.Hashes, func(i, j int) bool { return req.Hashes[i].Algorithm < req.Hashes[j].Algorithm })
	switch {
	case a.URL != "":
		req.Source = dist.Source{Kind: kind, URL: a.URL}
	case a.Path != "":
		path := absPath(a.Path, base)
		if kind == dist.SourceRegistry {
			req.Source = dist.Source{Kind: kind, URL: "file://" + filepath.ToSlash(path)}
		} else {
			req.Source = dist.Source{Kind: dist.SourcePath, Path: path}
		}
	default:
		return req, errors.New(errors.ErrCodeInvalidRequirement, "artifact has neither url nor path")
	}
	return req, nil
}

// pickWheel prefers a platform-independent wheel.
func pickWheel(wheels []lockArtifact) lockArtifact {
	for _, w := range wheels {
		name := w.Name
		if name == "" {
			name = w.URL + w.Path
		}
		if fn, err := dist.ParseWheelFilename(name); err == nil && fn.Platform == "any" {
			return w
		}
	}
	return wheels[0]
}
