package dist

import (
	"path/filepath"
	"strings"

	"github.com/matzehuels/stackpip/pkg/errors"
)

// ArchiveKind classifies a downloaded artifact by file name.
type ArchiveKind int

const (
	ArchiveUnknown ArchiveKind = iota
	ArchiveWheel
	ArchiveSdist
)

func (k ArchiveKind) String() string {
	switch k {
	case ArchiveWheel:
		return "wheel"
	case ArchiveSdist:
		return "sdist"
	}
	return "unknown"
}

// KindOf returns the archive kind for a file name.
func KindOf(filename string) ArchiveKind {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".whl"):
		return ArchiveWheel
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".zip"):
		return ArchiveSdist
	}
	return ArchiveUnknown
}

// WheelFilename is the parsed form of
// {name}-{version}(-{build})?-{python}-{abi}-{platform}.whl.
type WheelFilename struct {
	Name     PackageName
	Version  string
	Build    string
	Python   string
	ABI      string
	Platform string
}

// ParseWheelFilename parses a wheel file name (not a path).
func ParseWheelFilename(filename string) (WheelFilename, error) {
	base := filepath.Base(filename)
	if !strings.HasSuffix(strings.ToLower(base), ".whl") {
		return WheelFilename{}, errors.New(errors.ErrCodeInvalidPath, "not a wheel file: %s", base)
	}
	parts := strings.Split(base[:len(base)-len(".whl")], "-")

	var wf WheelFilename
	switch len(parts) {
	case 5:
		wf = WheelFilename{Version: parts[1], Python: parts[2], ABI: parts[3], Platform: parts[4]}
	case 6:
		wf = WheelFilename{Version: parts[1], Build: parts[2], Python: parts[3], ABI: parts[4], Platform: parts[5]}
	default:
		return WheelFilename{}, errors.New(errors.ErrCodeInvalidPath, "malformed wheel file name: %s", base)
	}
	if parts[0] == "" || wf.Version == "" {
		return WheelFilename{}, errors.New(errors.ErrCodeInvalidPath, "malformed wheel file name: %s", base)
	}
	wf.Name = NormalizeName(parts[0])
	return wf, nil
}

// String reassembles the canonical file name.
func (w WheelFilename) String() string {
	parts := []string{w.Name.DistInfoPrefix(), w.Version}
	if w.Build != "" {
		parts = append(parts, w.Build)
	}
	parts = append(parts, w.Python, w.ABI, w.Platform)
	return strings.Join(parts, "-") + ".whl"
}

// DistInfoDir is the name of the .dist-info directory the wheel installs.
func (w WheelFilename) DistInfoDir() string {
	return w.Name.DistInfoPrefix() + "-" + w.Version + ".dist-info"
}

// DataDir is the name of the optional .data directory inside the wheel.
func (w WheelFilename) DataDir() string {
	return w.Name.DistInfoPrefix() + "-" + w.Version + ".data"
}

// Wheel is a built artifact on local disk, ready to install.
type Wheel struct {
	Requirement Requirement
	Filename    WheelFilename

	// Path is the absolute path of the .whl file in the artifact cache.
	Path string

	// Hash is the sha256 of the wheel file, hex encoded.
	Hash string
}

// Name returns the normalized project name.
func (w Wheel) Name() PackageName { return w.Filename.Name }

// Version returns the wheel's version.
func (w Wheel) Version() string { return w.Filename.Version }

// ID returns the identity of the requirement that produced the wheel.
func (w Wheel) ID() string { return w.Requirement.ID() }
