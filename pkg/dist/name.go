package dist

import (
	"regexp"
	"strings"
)

// PackageName is a PEP 503 normalized project name.
type PackageName string

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName lowercases name and collapses runs of "-", "_" and "." into
// a single "-".
func NormalizeName(name string) PackageName {
	return PackageName(nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-"))
}

// String returns the normalized name.
func (n PackageName) String() string { return string(n) }

// DistInfoPrefix returns the name as it appears in .dist-info directory and
// wheel file names (dashes become underscores).
func (n PackageName) DistInfoPrefix() string {
	return strings.ReplaceAll(string(n), "-", "_")
}
