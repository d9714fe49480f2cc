package sitepackages

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/fsutil"
)

func registryDist(version string) *Distribution {
	return &Distribution{Name: "pkg", Version: version}
}

func TestSatisfiesRegistry(t *testing.T) {
	tests := []struct {
		name string
		req  dist.Requirement
		d    *Distribution
		want string
	}{
		{
			name: "exact pin",
			req:  dist.Requirement{Name: "pkg", Specifier: dist.MustSpecifier("==1.0")},
			d:    registryDist("1.0"),
			want: "satisfied",
		},
		{
			name: "range",
			req:  dist.Requirement{Name: "pkg", Specifier: dist.MustSpecifier(">=1.0,<2")},
			d:    registryDist("1.9.3"),
			want: "satisfied",
		},
		{
			name: "version differs",
			req:  dist.Requirement{Name: "pkg", Specifier: dist.MustSpecifier("==2.0")},
			d:    registryDist("1.0"),
			want: "mismatch",
		},
		{
			name: "unreadable metadata",
			req:  dist.Requirement{Name: "pkg", Specifier: dist.MustSpecifier("==1.0")},
			d:    &Distribution{Name: "pkg", Version: "1.0", MetadataErr: errors.New("bad METADATA")},
			want: "unusable",
		},
		{
			name: "installed from url",
			req:  dist.Requirement{Name: "pkg", Specifier: dist.MustSpecifier("==1.0")},
			d: &Distribution{Name: "pkg", Version: "1.0", DirectURL: &DirectURL{
				URL: "https://example.org/pkg-1.0-py3-none-any.whl",
			}},
			want: "mismatch",
		},
		{
			name: "unparseable installed version",
			req:  dist.Requirement{Name: "pkg", Specifier: dist.MustSpecifier(">=1.0")},
			d:    registryDist("1!2.0"),
			want: "mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Satisfies(tt.req, tt.d, nil)
			if kind(got) != tt.want {
				t.Errorf("Satisfies() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestSatisfiesURL(t *testing.T) {
	const url = "https://example.org/pkg-1.0-py3-none-any.whl"
	req := dist.Requirement{Name: "pkg", Source: dist.Source{Kind: dist.SourceURL, URL: url}}

	tests := []struct {
		name string
		d    *Distribution
		want string
	}{
		{"same url", &Distribution{Name: "pkg", Version: "1.0", DirectURL: &DirectURL{URL: url}}, "satisfied"},
		{"same url with hash fragment", &Distribution{Name: "pkg", Version: "1.0", DirectURL: &DirectURL{URL: url + "#sha256=abc"}}, "satisfied"},
		{"other url", &Distribution{Name: "pkg", Version: "1.0", DirectURL: &DirectURL{URL: "https://mirror/pkg.whl"}}, "mismatch"},
		{"registry install", registryDist("1.0"), "mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Satisfies(req, tt.d, nil); kind(got) != tt.want {
				t.Errorf("Satisfies() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestSatisfiesEditable(t *testing.T) {
	src := t.TempDir()
	fp := fsutil.FingerprintFunc(func(string) (string, error) { return "fp-current", nil })

	req := dist.Requirement{Name: "app", Source: dist.Source{Kind: dist.SourceEditable, Path: src}}
	editableURL := &DirectURL{URL: FileURL(src), DirInfo: &DirInfo{Editable: true}}

	tests := []struct {
		name string
		d    *Distribution
		fp   fsutil.Fingerprinter
		want string
	}{
		{
			name: "unchanged",
			d:    &Distribution{Name: "app", Version: "0.1", DirectURL: editableURL, Source: &SourceStamp{Path: src, Fingerprint: "fp-current"}},
			fp:   fp,
			want: "satisfied",
		},
		{
			name: "source edited",
			d:    &Distribution{Name: "app", Version: "0.1", DirectURL: editableURL, Source: &SourceStamp{Path: src, Fingerprint: "fp-old"}},
			fp:   fp,
			want: "out-of-date",
		},
		{
			name: "no fingerprint",
			d:    &Distribution{Name: "app", Version: "0.1", DirectURL: editableURL},
			fp:   fp,
			want: "unusable",
		},
		{
			name: "installed non-editable",
			d:    &Distribution{Name: "app", Version: "0.1", DirectURL: &DirectURL{URL: FileURL(src), DirInfo: &DirInfo{}}},
			fp:   fp,
			want: "mismatch",
		},
		{
			name: "other path",
			d:    &Distribution{Name: "app", Version: "0.1", DirectURL: &DirectURL{URL: FileURL(filepath.Join(src, "other")), DirInfo: &DirInfo{Editable: true}}},
			fp:   fp,
			want: "mismatch",
		},
		{
			name: "fingerprint failure",
			d:    &Distribution{Name: "app", Version: "0.1", DirectURL: editableURL, Source: &SourceStamp{Fingerprint: "fp-current"}},
			fp:   fsutil.FingerprintFunc(func(string) (string, error) { return "", errors.New("permission denied") }),
			want: "unusable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Satisfies(req, tt.d, tt.fp); kind(got) != tt.want {
				t.Errorf("Satisfies() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestSatisfiesMovedSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "moved")
	if err := os.Mkdir(src, 0o755); err != nil {
		t.Fatal(err)
	}
	req := dist.Requirement{Name: "app", Source: dist.Source{Kind: dist.SourceDirectory, Path: src}}
	d := &Distribution{
		Name: "app", Version: "0.1",
		DirectURL: &DirectURL{URL: FileURL(src), DirInfo: &DirInfo{}},
		Source:    &SourceStamp{Fingerprint: "x"},
	}
	os.Remove(src)

	if got := Satisfies(req, d, nil); kind(got) != "unusable" {
		t.Errorf("Satisfies() = %v, want unusable", got)
	}
}

func TestSatisfiesRealFingerprint(t *testing.T) {
	src := t.TempDir()
	os.WriteFile(filepath.Join(src, "pyproject.toml"), []byte("[project]\nname='app'\n"), 0o644)
	fp, err := fsutil.TreeFingerprint(src)
	if err != nil {
		t.Fatal(err)
	}
	req := dist.Requirement{Name: "app", Source: dist.Source{Kind: dist.SourceEditable, Path: src}}
	d := &Distribution{
		Name: "app", Version: "0.1",
		DirectURL: &DirectURL{URL: FileURL(src), DirInfo: &DirInfo{Editable: true}},
		Source:    &SourceStamp{Path: src, Fingerprint: fp},
	}

	if got := Satisfies(req, d, nil); !IsSatisfied(got) {
		t.Fatalf("first check = %v, want satisfied", got)
	}

	os.WriteFile(filepath.Join(src, "app.py"), []byte("x = 1\n"), 0o644)
	if got := Satisfies(req, d, nil); kind(got) != "out-of-date" {
		t.Errorf("after edit = %v, want out-of-date", got)
	}
}

func kind(r SatisfiesResult) string {
	switch r.(type) {
	case Satisfied:
		return "satisfied"
	case Mismatch:
		return "mismatch"
	case OutOfDate:
		return "out-of-date"
	case Unusable:
		return "unusable"
	}
	return "unknown"
}
