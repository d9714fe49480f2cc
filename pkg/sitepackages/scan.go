package sitepackages

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
)

// Scan reads every .dist-info directory under root. Legacy .egg-info
// entries are reported as diagnostics and left out of the index.
//
// Per-distribution problems are recorded as diagnostics; only a missing or
// unreadable root returns an error (ErrCodeEnvironment).
func Scan(ctx context.Context, root string) (*SitePackages, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEnvironment, err, "resolve site-packages path")
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEnvironment, err, "read site-packages %s", root)
	}

	sp := New(root)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasSuffix(e.Name(), ".egg-info") {
			sp.diagnose(readEggInfo(root, e))
			continue
		}
		if !e.IsDir() || !strings.HasSuffix(e.Name(), ".dist-info") {
			continue
		}
		d, diags := ReadDistribution(root, e.Name())
		for _, diag := range diags {
			sp.diagnose(diag)
		}
		if d == nil {
			continue
		}
		if live, ok := sp.byName[d.Name]; ok {
			sp.diagnose(Diagnostic{
				Kind:    DuplicatePackage,
				Name:    d.Name,
				Paths:   []string{live.Path, d.Path},
				Message: fmt.Sprintf("found %s and %s", filepath.Base(live.Path), filepath.Base(d.Path)),
			})
			sp.duplicates[d.Name] = append(sp.duplicates[d.Name], d)
			continue
		}
		sp.byName[d.Name] = d
	}
	return sp, nil
}

// ReadDistribution loads one .dist-info directory. It returns nil when the
// directory has no RECORD, since such a distribution was never committed.
func ReadDistribution(root, dirName string) (*Distribution, []Diagnostic) {
	path := filepath.Join(root, dirName)
	name, version := splitDistInfoName(dirName)

	d := &Distribution{
		Name:    name,
		Version: version,
		Root:    root,
		Path:    path,
	}
	var diags []Diagnostic
	fail := func(err error) {
		if d.MetadataErr == nil {
			d.MetadataErr = err
		}
		diags = append(diags, Diagnostic{
			Kind:    MetadataUnavailable,
			Name:    d.Name,
			Paths:   []string{path},
			Message: err.Error(),
		})
	}

	record, err := os.Open(filepath.Join(path, RecordFile))
	if os.IsNotExist(err) {
		return nil, []Diagnostic{{
			Kind:    MissingRecord,
			Name:    name,
			Paths:   []string{path},
			Message: "no RECORD; treating as not installed",
		}}
	}
	if err != nil {
		fail(fmt.Errorf("open RECORD: %w", err))
	} else {
		d.Record, err = ReadRecord(record)
		record.Close()
		if err != nil {
			fail(err)
		}
	}

	if f, err := os.Open(filepath.Join(path, "METADATA")); err != nil {
		fail(fmt.Errorf("open METADATA: %w", err))
	} else {
		md, err := ParseMetadata(f)
		f.Close()
		if err != nil {
			fail(err)
		} else {
			d.Name = dist.NormalizeName(md.Name)
			d.Version = md.Version
			d.RequiresPython = md.RequiresPython
			d.RequiresDist = md.RequiresDist
		}
	}

	if data, err := os.ReadFile(filepath.Join(path, "INSTALLER")); err == nil {
		d.Installer = string(bytes.TrimSpace(data))
	}
	if _, err := os.Stat(filepath.Join(path, "REQUESTED")); err == nil {
		d.Requested = true
	}

	if data, err := os.ReadFile(filepath.Join(path, DirectURLFile)); err == nil {
		if d.DirectURL, err = ParseDirectURL(data); err != nil {
			fail(fmt.Errorf("%s: %w", DirectURLFile, err))
		}
	}
	if data, err := os.ReadFile(filepath.Join(path, SourceFile)); err == nil {
		if d.Source, err = ParseSourceStamp(data); err != nil {
			fail(fmt.Errorf("%s: %w", SourceFile, err))
		}
	}

	return d, diags
}

// readEggInfo describes a legacy install. The entry is either a directory
// holding PKG-INFO or, for distutils, the PKG-INFO file itself.
func readEggInfo(root string, e os.DirEntry) Diagnostic {
	path := filepath.Join(root, e.Name())
	stem := strings.TrimSuffix(e.Name(), ".egg-info")
	name, version, _ := strings.Cut(stem, "-")
	version, _, _ = strings.Cut(version, "-") // drop "-py3.12"

	pkgInfo := path
	if e.IsDir() {
		pkgInfo = filepath.Join(path, "PKG-INFO")
	}
	if f, err := os.Open(pkgInfo); err == nil {
		md, err := ParseMetadata(f)
		f.Close()
		if err == nil && md.Name != "" {
			name, version = md.Name, md.Version
		}
	}
	return Diagnostic{
		Kind:    LegacyDistribution,
		Name:    dist.NormalizeName(name),
		Paths:   []string{path},
		Message: fmt.Sprintf("%s %s was installed without a RECORD and cannot be managed", name, version),
	}
}

// splitDistInfoName splits "typing_extensions-4.9.0.dist-info". Dashes in
// the project name are escaped to underscores, so the first dash separates
// name and version.
func splitDistInfoName(dirName string) (dist.PackageName, string) {
	stem := strings.TrimSuffix(dirName, ".dist-info")
	name, version, _ := strings.Cut(stem, "-")
	return dist.NormalizeName(name), version
}
