package dist

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matzehuels/stackpip/pkg/errors"
)

// SourceKind says where a requirement's distribution comes from.
type SourceKind int

const (
	SourceRegistry SourceKind = iota
	SourceURL
	SourcePath
	SourceDirectory
	SourceEditable
)

func (k SourceKind) String() string {
	switch k {
	case SourceRegistry:
		return "registry"
	case SourceURL:
		return "url"
	case SourcePath:
		return "path"
	case SourceDirectory:
		return "directory"
	case SourceEditable:
		return "editable"
	}
	return fmt.Sprintf("SourceKind(%d)", int(k))
}

// IsLocal reports whether the source lives on the local filesystem.
func (k SourceKind) IsLocal() bool {
	return k == SourcePath || k == SourceDirectory || k == SourceEditable
}

// Source pins the origin of a requirement.
type Source struct {
	Kind SourceKind

	// URL is the artifact location for registry and direct URL requirements.
	URL string

	// Path is the absolute filesystem path for local sources.
	Path string
}

// Hash is an expected artifact digest ("sha256:<hex>").
type Hash struct {
	Algorithm string
	Digest    string
}

// ParseHash parses "algo:digest" or "algo=digest".
func ParseHash(s string) (Hash, error) {
	sep := strings.IndexAny(s, ":=")
	if sep <= 0 || sep == len(s)-1 {
		return Hash{}, errors.New(errors.ErrCodeInvalidRequirement, "invalid hash %q", s)
	}
	return Hash{
		Algorithm: strings.ToLower(s[:sep]),
		Digest:    strings.ToLower(s[sep+1:]),
	}, nil
}

func (h Hash) String() string { return h.Algorithm + ":" + h.Digest }

// Requirement is one resolved entry of the desired set.
type Requirement struct {
	Name      PackageName
	Specifier Specifier
	Source    Source
	Extras    []string
	Marker    string
	Hashes    []Hash
}

// Validate checks the invariants every resolved requirement must hold.
func (r Requirement) Validate() error {
	if err := errors.ValidatePythonPackageName(string(r.Name)); err != nil {
		return err
	}
	switch r.Source.Kind {
	case SourceURL:
		if err := errors.ValidateURL(r.Source.URL); err != nil {
			return err
		}
	case SourcePath, SourceDirectory, SourceEditable:
		if r.Source.Path == "" || !filepath.IsAbs(r.Source.Path) {
			return errors.New(errors.ErrCodeInvalidRequirement, "%s: local source path must be absolute, got %q", r.Name, r.Source.Path)
		}
	}
	return nil
}

// Version returns the pinned version, if the requirement has one.
func (r Requirement) Version() string {
	v, _ := r.Specifier.Pinned()
	return v
}

// IsEditable reports whether the requirement is an editable install.
func (r Requirement) IsEditable() bool { return r.Source.Kind == SourceEditable }

// ID returns the distribution identity used for in-flight deduplication and
// cache addressing. Two requirements with the same ID produce the same
// artifact.
func (r Requirement) ID() string {
	switch r.Source.Kind {
	case SourceURL:
		return fmt.Sprintf("%s @ %s", r.Name, r.Source.URL)
	case SourcePath, SourceDirectory:
		return fmt.Sprintf("%s @ file://%s", r.Name, filepath.ToSlash(r.Source.Path))
	case SourceEditable:
		return fmt.Sprintf("-e %s @ file://%s", r.Name, filepath.ToSlash(r.Source.Path))
	}
	if v, ok := r.Specifier.Pinned(); ok {
		return fmt.Sprintf("%s==%s", r.Name, v)
	}
	return string(r.Name) + r.Specifier.String()
}

// String renders the requirement roughly as it would appear in a
// requirements file.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(string(r.Name))
	if len(r.Extras) > 0 {
		extras := append([]string(nil), r.Extras...)
		sort.Strings(extras)
		b.WriteString("[" + strings.Join(extras, ",") + "]")
	}
	switch r.Source.Kind {
	case SourceURL:
		b.WriteString(" @ " + r.Source.URL)
	case SourcePath, SourceDirectory, SourceEditable:
		b.WriteString(" @ file://" + filepath.ToSlash(r.Source.Path))
	default:
		b.WriteString(r.Specifier.String())
	}
	if r.Marker != "" {
		b.WriteString(" ; " + r.Marker)
	}
	return b.String()
}
