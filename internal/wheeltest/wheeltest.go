// Package wheeltest builds small wheel archives for tests.
package wheeltest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/fsutil"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
)

// Filename returns the canonical wheel file name for name and version.
func Filename(name, version string) string {
	return dist.WheelFilename{
		Name:     dist.NormalizeName(name),
		Version:  version,
		Python:   "py3",
		ABI:      "none",
		Platform: "any",
	}.String()
}

// Build writes a wheel for name==version into dir and returns its path.
// files maps archive paths to contents; when empty a single
// <name>/__init__.py is included. METADATA, WHEEL and RECORD are generated.
func Build(t testing.TB, dir, name, version string, files map[string]string) string {
	t.Helper()
	data, err := Bytes(name, version, files)
	if err != nil {
		t.Fatalf("build wheel: %v", err)
	}
	path := filepath.Join(dir, Filename(name, version))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write wheel: %v", err)
	}
	return path
}

// Bytes returns the wheel archive for name==version.
func Bytes(name, version string, files map[string]string) ([]byte, error) {
	pkg := dist.NormalizeName(name)
	distInfo := pkg.DistInfoPrefix() + "-" + version + ".dist-info"

	all := make(map[string]string, len(files)+2)
	if len(files) == 0 {
		all[pkg.DistInfoPrefix()+"/__init__.py"] = fmt.Sprintf("__version__ = %q\n", version)
	}
	for k, v := range files {
		all[k] = v
	}
	all[distInfo+"/METADATA"] = fmt.Sprintf("Metadata-Version: 2.1\nName: %s\nVersion: %s\n\n", name, version)
	all[distInfo+"/WHEEL"] = "Wheel-Version: 1.0\nGenerator: wheeltest\nRoot-Is-Purelib: true\nTag: py3-none-any\n"

	names := make([]string, 0, len(all))
	for k := range all {
		names = append(names, k)
	}
	sort.Strings(names)

	var record []sitepackages.RecordEntry
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		mode := os.FileMode(0o644)
		if strings.Contains(n, ".data/scripts/") {
			mode = 0o755
		}
		hdr := &zip.FileHeader{Name: n, Method: zip.Deflate}
		hdr.SetMode(mode)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(all[n])); err != nil {
			return nil, err
		}
		digest, size, _ := fsutil.RecordDigest(strings.NewReader(all[n]))
		record = append(record, sitepackages.RecordEntry{Path: n, Digest: digest, Size: size})
	}
	record = append(record, sitepackages.RecordEntry{Path: distInfo + "/RECORD", Size: -1})

	var rec bytes.Buffer
	if err := sitepackages.WriteRecord(&rec, record); err != nil {
		return nil, err
	}
	w, err := zw.Create(distInfo + "/RECORD")
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(rec.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
