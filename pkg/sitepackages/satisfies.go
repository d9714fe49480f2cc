package sitepackages

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/fsutil"
)

// SatisfiesResult is the outcome of comparing a requirement with an
// installed distribution. The concrete type is one of Satisfied, Mismatch,
// OutOfDate or Unusable.
type SatisfiesResult interface {
	fmt.Stringer
	isSatisfiesResult()
}

// Satisfied: the installed distribution can be kept as is.
type Satisfied struct{}

// Mismatch: version, source or install mode differs. Replace.
type Mismatch struct{ Reason string }

// OutOfDate: same source, but its content changed since install. Rebuild.
type OutOfDate struct{ Reason string }

// Unusable: the installed distribution cannot be trusted (unreadable
// metadata, ambiguous source). Replace.
type Unusable struct{ Reason string }

func (Satisfied) isSatisfiesResult() {}
func (Mismatch) isSatisfiesResult()  {}
func (OutOfDate) isSatisfiesResult() {}
func (Unusable) isSatisfiesResult()  {}

func (Satisfied) String() string   { return "satisfied" }
func (r Mismatch) String() string  { return "mismatch: " + r.Reason }
func (r OutOfDate) String() string { return "out of date: " + r.Reason }
func (r Unusable) String() string  { return "unusable: " + r.Reason }

// IsSatisfied is shorthand for a type assertion on Satisfied.
func IsSatisfied(r SatisfiesResult) bool {
	_, ok := r.(Satisfied)
	return ok
}

// Satisfies decides whether d can serve req. fp fingerprints local source
// trees; it may be nil when req has no local source.
//
// Whenever identity cannot be positively confirmed the result is Mismatch
// or Unusable, never Satisfied.
func Satisfies(req dist.Requirement, d *Distribution, fp fsutil.Fingerprinter) SatisfiesResult {
	if d.MetadataErr != nil {
		return Unusable{Reason: d.MetadataErr.Error()}
	}

	switch req.Source.Kind {
	case dist.SourceURL:
		return satisfiesURL(req, d)
	case dist.SourcePath, dist.SourceDirectory, dist.SourceEditable:
		return satisfiesLocal(req, d, fp)
	}

	if d.DirectURL != nil {
		return Mismatch{Reason: fmt.Sprintf("installed from %s, requirement expects a registry release", d.DirectURL.URL)}
	}
	if !req.Specifier.Contains(d.Version) {
		return Mismatch{Reason: fmt.Sprintf("installed %s does not match %s", d.Version, req.Specifier)}
	}
	return Satisfied{}
}

func satisfiesURL(req dist.Requirement, d *Distribution) SatisfiesResult {
	if d.DirectURL == nil {
		return Mismatch{Reason: "installed from a registry, requirement pins " + req.Source.URL}
	}
	if d.DirectURL.IsEditable() {
		return Mismatch{Reason: "installed as editable"}
	}
	if !SameURL(d.DirectURL.URL, req.Source.URL) {
		return Mismatch{Reason: fmt.Sprintf("installed from %s, requirement pins %s", d.DirectURL.URL, req.Source.URL)}
	}
	if !req.Specifier.IsEmpty() && !req.Specifier.Contains(d.Version) {
		return Mismatch{Reason: fmt.Sprintf("installed %s does not match %s", d.Version, req.Specifier)}
	}
	return Satisfied{}
}

func satisfiesLocal(req dist.Requirement, d *Distribution, fp fsutil.Fingerprinter) SatisfiesResult {
	if d.DirectURL == nil {
		return Mismatch{Reason: "installed from a registry, requirement pins " + req.Source.Path}
	}
	if d.DirectURL.IsEditable() != req.IsEditable() {
		if req.IsEditable() {
			return Mismatch{Reason: "installed non-editable, requirement is editable"}
		}
		return Mismatch{Reason: "installed as editable, requirement is not"}
	}

	recorded, ok := d.DirectURL.LocalPath()
	if !ok {
		return Mismatch{Reason: fmt.Sprintf("installed from %s, requirement pins %s", d.DirectURL.URL, req.Source.Path)}
	}
	if recorded != filepath.Clean(req.Source.Path) {
		return Mismatch{Reason: fmt.Sprintf("installed from %s, requirement pins %s", recorded, req.Source.Path)}
	}
	if _, err := os.Stat(recorded); err != nil {
		return Unusable{Reason: fmt.Sprintf("recorded source %s is no longer accessible", recorded)}
	}
	if !req.Specifier.IsEmpty() && !req.Specifier.Contains(d.Version) {
		return Mismatch{Reason: fmt.Sprintf("installed %s does not match %s", d.Version, req.Specifier)}
	}

	if d.Source == nil || d.Source.Fingerprint == "" {
		return Unusable{Reason: "no source fingerprint recorded"}
	}
	if fp == nil {
		fp = fsutil.FingerprintFunc(fsutil.TreeFingerprint)
	}
	current, err := fp.Fingerprint(recorded)
	if err != nil {
		return Unusable{Reason: fmt.Sprintf("fingerprint %s: %v", recorded, err)}
	}
	if current != d.Source.Fingerprint {
		return OutOfDate{Reason: fmt.Sprintf("source %s changed since install", recorded)}
	}
	return Satisfied{}
}
