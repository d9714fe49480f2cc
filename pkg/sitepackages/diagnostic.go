package sitepackages

import (
	"fmt"

	"github.com/matzehuels/stackpip/pkg/dist"
)

// DiagnosticKind classifies an environment anomaly.
type DiagnosticKind int

const (
	// MetadataUnavailable: METADATA, RECORD or direct_url.json is unreadable
	// or malformed.
	MetadataUnavailable DiagnosticKind = iota
	// MissingRecord: a .dist-info directory without a RECORD, typically an
	// interrupted install. The distribution is not registered.
	MissingRecord
	// DuplicatePackage: more than one .dist-info directory for one name.
	DuplicatePackage
	// IncompatiblePython: Requires-Python excludes the environment's Python.
	IncompatiblePython
	// MissingDependency: an unconditional Requires-Dist entry is not installed.
	MissingDependency
	// IncompatibleDependency: a dependency is installed at a version outside
	// the declared range.
	IncompatibleDependency
	// LegacyDistribution: an .egg-info entry left by setuptools or distutils.
	// It has no RECORD, so it is reported but never managed.
	LegacyDistribution
)

func (k DiagnosticKind) String() string {
	switch k {
	case MetadataUnavailable:
		return "metadata-unavailable"
	case MissingRecord:
		return "missing-record"
	case DuplicatePackage:
		return "duplicate-package"
	case IncompatiblePython:
		return "incompatible-python"
	case MissingDependency:
		return "missing-dependency"
	case IncompatibleDependency:
		return "incompatible-dependency"
	case LegacyDistribution:
		return "legacy-distribution"
	}
	return fmt.Sprintf("DiagnosticKind(%d)", int(k))
}

// Diagnostic describes one anomaly found in the environment.
type Diagnostic struct {
	Kind    DiagnosticKind
	Name    dist.PackageName
	Paths   []string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Kind, d.Name, d.Message)
}
