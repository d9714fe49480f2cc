package sitepackages

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/stackpip/pkg/dist"
)

// fakeDist describes a .dist-info directory to materialize for tests.
type fakeDist struct {
	dirName   string
	metadata  string
	record    string // "" writes a default RECORD; "-" omits it
	directURL string
	source    string
}

func writeDist(t *testing.T, root string, fd fakeDist) string {
	t.Helper()
	dir := filepath.Join(root, fd.dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if fd.metadata != "" {
		write("METADATA", fd.metadata)
	}
	switch fd.record {
	case "-":
	case "":
		write(RecordFile, fd.dirName+"/METADATA,,\n"+fd.dirName+"/RECORD,,\n")
	default:
		write(RecordFile, fd.record)
	}
	if fd.directURL != "" {
		write(DirectURLFile, fd.directURL)
	}
	if fd.source != "" {
		write(SourceFile, fd.source)
	}
	write("INSTALLER", "stackpip\n")
	return dir
}

func metadata(name, version string, extra ...string) string {
	lines := []string{"Metadata-Version: 2.1", "Name: " + name, "Version: " + version}
	lines = append(lines, extra...)
	return strings.Join(lines, "\n") + "\n\nLong description.\n"
}

func distName(s string) dist.PackageName { return dist.NormalizeName(s) }
