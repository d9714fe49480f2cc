package editable

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stackpip/pkg/build"
	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fsutil"
)

// ResolvedEditable is a local project that has been located and
// fingerprinted but not built.
type ResolvedEditable struct {
	Requirement dist.Requirement
	Path        string

	// Dynamic is true when metadata can only be obtained from the build
	// backend. Static is set otherwise.
	Dynamic bool
	Static  *build.Metadata

	// Backend is the declared build backend, for diagnostics.
	Backend string

	// Fingerprint of the source tree at resolution time.
	Fingerprint string
}

// legacyBackend is used for projects that do not declare a backend.
const legacyBackend = "setuptools.build_meta:__legacy__"

// ID returns the requirement's identity.
func (r *ResolvedEditable) ID() string { return r.Requirement.ID() }

// pyproject is the subset of pyproject.toml that decides how a project is
// described.
type pyproject struct {
	Project *struct {
		Name           string   `toml:"name"`
		Version        string   `toml:"version"`
		Dependencies   []string `toml:"dependencies"`
		RequiresPython string   `toml:"requires-python"`
		Dynamic        []string `toml:"dynamic"`
	} `toml:"project"`
	BuildSystem struct {
		BuildBackend string `toml:"build-backend"`
	} `toml:"build-system"`
}

func readPyproject(dir string) (*pyproject, bool, error) {
	path := filepath.Join(dir, "pyproject.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, false, nil
	}
	var p pyproject
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, true, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "parse %s", path)
	}
	return &p, true, nil
}

// IsDynamic reports whether the project in dir needs its build backend to
// reveal its name, version or dependencies.
func IsDynamic(dir string) (bool, error) {
	p, ok, err := readPyproject(dir)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return p.dynamic(), nil
}

func (p *pyproject) dynamic() bool {
	if p.Project == nil || p.Project.Name == "" || p.Project.Version == "" {
		return true
	}
	for _, field := range p.Project.Dynamic {
		switch field {
		case "name", "version", "dependencies", "requires-python":
			return true
		}
	}
	return false
}

// Resolve locates the project for an editable requirement. fp fingerprints
// the source tree; nil hashes every file with fsutil.TreeFingerprint.
func Resolve(req dist.Requirement, fp fsutil.Fingerprinter) (*ResolvedEditable, error) {
	if req.Source.Kind != dist.SourceEditable {
		return nil, errors.New(errors.ErrCodeInvalidRequirement, "%s is not an editable requirement", req.ID())
	}
	dir := filepath.Clean(req.Source.Path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidRequirement, "%s: %s is not a directory", req.Name, dir)
	}

	p, hasPyproject, err := readPyproject(dir)
	if err != nil {
		return nil, err
	}
	if !hasPyproject {
		if _, err := os.Stat(filepath.Join(dir, "setup.py")); err != nil {
			return nil, errors.New(errors.ErrCodeInvalidRequirement, "%s: %s has neither pyproject.toml nor setup.py", req.Name, dir)
		}
	}

	r := &ResolvedEditable{Requirement: req, Path: dir, Dynamic: p == nil || p.dynamic(), Backend: legacyBackend}
	if p != nil && p.BuildSystem.BuildBackend != "" {
		r.Backend = p.BuildSystem.BuildBackend
	}
	if !r.Dynamic {
		if got := dist.NormalizeName(p.Project.Name); got != req.Name {
			return nil, errors.New(errors.ErrCodeInvalidRequirement, "%s: project at %s is named %s", req.Name, dir, got)
		}
		r.Static = &build.Metadata{
			Name:           p.Project.Name,
			Version:        p.Project.Version,
			RequiresPython: p.Project.RequiresPython,
			RequiresDist:   p.Project.Dependencies,
		}
	}

	if fp == nil {
		fp = fsutil.FingerprintFunc(fsutil.TreeFingerprint)
	}
	if r.Fingerprint, err = fp.Fingerprint(dir); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "fingerprint %s", dir)
	}
	return r, nil
}
