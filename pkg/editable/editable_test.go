package editable

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/matzehuels/stackpip/internal/wheeltest"
	"github.com/matzehuels/stackpip/pkg/build"
	"github.com/matzehuels/stackpip/pkg/cache"
	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/install"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
	"github.com/matzehuels/stackpip/pkg/wheelcache"
)

const staticPyproject = `
[build-system]
requires = ["hatchling"]
build-backend = "hatchling.build"

[project]
name = "Demo"
version = "1.0"
dependencies = ["requests>=2"]
requires-python = ">=3.9"
`

// project writes a source tree with the given pyproject.toml.
func project(t *testing.T, pyproject string) string {
	t.Helper()
	dir := t.TempDir()
	if pyproject != "" {
		if err := os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(pyproject), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	os.MkdirAll(filepath.Join(dir, "demo"), 0o755)
	os.WriteFile(filepath.Join(dir, "demo", "__init__.py"), []byte("x = 1\n"), 0o644)
	return dir
}

func editableReq(path string) dist.Requirement {
	return dist.Requirement{Name: "demo", Source: dist.Source{Kind: dist.SourceEditable, Path: path}}
}

// fakeBackend builds a .pth-style editable wheel for name==version.
type fakeBackend struct {
	name, version string
	builds        atomic.Int32
	prepares      atomic.Int32
}

func (b *fakeBackend) BuildWheel(ctx context.Context, srcDir, outDir string) (string, error) {
	return "", errors.New(errors.ErrCodeUnsupported, "not used")
}

func (b *fakeBackend) BuildEditable(ctx context.Context, srcDir, outDir string) (string, error) {
	b.builds.Add(1)
	data, err := wheeltest.Bytes(b.name, b.version, map[string]string{"_demo_editable.pth": srcDir + "\n"})
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, wheeltest.Filename(b.name, b.version))
	return path, os.WriteFile(path, data, 0o644)
}

func (b *fakeBackend) PrepareMetadata(ctx context.Context, srcDir string) (*build.Metadata, error) {
	b.prepares.Add(1)
	return &build.Metadata{Name: b.name, Version: b.version}, nil
}

func newStore(t *testing.T) *wheelcache.Store {
	t.Helper()
	s, err := wheelcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestIsDynamic(t *testing.T) {
	tests := []struct {
		name      string
		pyproject string
		want      bool
	}{
		{"static", staticPyproject, false},
		{"no pyproject", "", true},
		{"no project table", "[build-system]\nbuild-backend = 'setuptools.build_meta'\n", true},
		{"missing version", "[project]\nname = 'demo'\n", true},
		{"dynamic version", "[project]\nname = 'demo'\nversion = '1.0'\ndynamic = ['version']\n", true},
		{"dynamic dependencies", "[project]\nname = 'demo'\nversion = '1.0'\ndynamic = ['dependencies']\n", true},
		{"dynamic readme only", "[project]\nname = 'demo'\nversion = '1.0'\ndynamic = ['readme']\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsDynamic(project(t, tt.pyproject))
			if err != nil {
				t.Fatalf("IsDynamic: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsDynamic = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := IsDynamic(project(t, "[project\n")); !errors.Is(err, errors.ErrCodeInvalidRequirement) {
		t.Errorf("malformed pyproject.toml: err = %v", err)
	}
}

func TestResolve(t *testing.T) {
	dir := project(t, staticPyproject)
	r, err := Resolve(editableReq(dir), nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Dynamic || r.Static == nil {
		t.Fatalf("static project resolved as dynamic: %+v", r)
	}
	if r.Static.Version != "1.0" || len(r.Static.RequiresDist) != 1 || r.Static.RequiresPython != ">=3.9" {
		t.Errorf("Static = %+v", r.Static)
	}
	if r.Backend != "hatchling.build" {
		t.Errorf("Backend = %q", r.Backend)
	}
	if r.Fingerprint == "" {
		t.Error("Fingerprint is empty")
	}

	setupOnly := project(t, "")
	os.WriteFile(filepath.Join(setupOnly, "setup.py"), []byte("from setuptools import setup\nsetup()\n"), 0o644)
	r, err = Resolve(editableReq(setupOnly), nil)
	if err != nil {
		t.Fatalf("Resolve setup.py project: %v", err)
	}
	if !r.Dynamic || r.Backend != legacyBackend {
		t.Errorf("setup.py project = %+v", r)
	}
}

func TestResolveErrors(t *testing.T) {
	other := project(t, "[project]\nname = 'other'\nversion = '1.0'\n")
	tests := []struct {
		name string
		req  dist.Requirement
	}{
		{"not editable", dist.Requirement{Name: "demo", Source: dist.Source{Kind: dist.SourceDirectory, Path: project(t, staticPyproject)}}},
		{"missing directory", editableReq(filepath.Join(t.TempDir(), "gone"))},
		{"not a project", editableReq(project(t, ""))},
		{"name mismatch", editableReq(other)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve(tt.req, nil); !errors.Is(err, errors.ErrCodeInvalidRequirement) {
				t.Errorf("err = %v, want INVALID_REQUIREMENT", err)
			}
		})
	}
}

func TestBuildReusesUnchangedProject(t *testing.T) {
	dir := project(t, staticPyproject)
	store := newStore(t)
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	backend := &fakeBackend{name: "demo", version: "1.0"}
	ctx := context.Background()

	r, err := Resolve(editableReq(dir), nil)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(backend, store, nil)
	b.Cache = fc
	built, err := b.Build(ctx, r)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.Metadata.Version != "1.0" || built.Wheel.Name() != "demo" {
		t.Errorf("built = %+v", built)
	}

	// A fresh builder (a later run) sharing the cache does not rebuild.
	b2 := NewBuilder(backend, store, nil)
	b2.Cache = fc
	again, err := b2.Build(ctx, r)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if n := backend.builds.Load(); n != 1 {
		t.Errorf("backend ran %d times, want 1", n)
	}
	if again.Wheel.Path != built.Wheel.Path {
		t.Errorf("reused wheel %s, want %s", again.Wheel.Path, built.Wheel.Path)
	}

	// Editing the source changes the fingerprint and forces a rebuild.
	os.WriteFile(filepath.Join(dir, "demo", "__init__.py"), []byte("x = 2\n"), 0o644)
	changed, err := Resolve(editableReq(dir), nil)
	if err != nil {
		t.Fatal(err)
	}
	if changed.Fingerprint == r.Fingerprint {
		t.Fatal("fingerprint did not change after edit")
	}
	if _, err := b2.Build(ctx, changed); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n := backend.builds.Load(); n != 2 {
		t.Errorf("backend ran %d times, want 2", n)
	}
}

func TestBuildRejectsVersionOutsideSpecifier(t *testing.T) {
	dir := project(t, staticPyproject)
	r, err := Resolve(editableReq(dir), nil)
	if err != nil {
		t.Fatal(err)
	}
	r.Requirement.Specifier = dist.MustSpecifier(">=2")
	_, err = NewBuilder(&fakeBackend{name: "demo", version: "1.0"}, newStore(t), nil).Build(context.Background(), r)
	if !errors.Is(err, errors.ErrCodeBuild) {
		t.Errorf("err = %v, want BUILD_ERROR for a version outside the specifier", err)
	}
}

func TestBuildChecksMetadataFirst(t *testing.T) {
	ctx := context.Background()
	dynamic := "[project]\nname = 'demo'\ndynamic = ['version']\n"

	tests := []struct {
		name         string
		pyproject    string
		spec         string
		wantErr      bool
		wantPrepares int32
		wantBuilds   int32
	}{
		{"static mismatch", staticPyproject, ">=2", true, 0, 0},
		{"dynamic mismatch", dynamic, ">=4", true, 1, 0},
		{"dynamic match", dynamic, "==3.1", false, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{name: "demo", version: "3.1"}
			r, err := Resolve(editableReq(project(t, tt.pyproject)), nil)
			if err != nil {
				t.Fatal(err)
			}
			r.Requirement.Specifier = dist.MustSpecifier(tt.spec)

			_, err = NewBuilder(backend, newStore(t), nil).Build(ctx, r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Build err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeBuild) {
				t.Errorf("err = %v, want BUILD_ERROR", err)
			}
			if got := backend.prepares.Load(); got != tt.wantPrepares {
				t.Errorf("PrepareMetadata ran %d times, want %d", got, tt.wantPrepares)
			}
			if got := backend.builds.Load(); got != tt.wantBuilds {
				t.Errorf("BuildEditable ran %d times, want %d", got, tt.wantBuilds)
			}
		})
	}
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{name: "demo", version: "3.1"}
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(backend, newStore(t), nil)
	b.Cache = fc

	static, err := Resolve(editableReq(project(t, staticPyproject)), nil)
	if err != nil {
		t.Fatal(err)
	}
	md, err := b.Metadata(ctx, static)
	if err != nil || md.Version != "1.0" {
		t.Fatalf("static Metadata = %+v, %v", md, err)
	}
	if backend.prepares.Load() != 0 {
		t.Error("static metadata must not invoke the backend")
	}

	dynamic, err := Resolve(editableReq(project(t, "[project]\nname = 'demo'\ndynamic = ['version']\n")), nil)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		md, err = b.Metadata(ctx, dynamic)
		if err != nil || md.Version != "3.1" {
			t.Fatalf("dynamic Metadata = %+v, %v", md, err)
		}
	}
	if n := backend.prepares.Load(); n != 1 {
		t.Errorf("PrepareMetadata ran %d times, want 1", n)
	}
}

func TestInstallEditable(t *testing.T) {
	ctx := context.Background()
	dir := project(t, "[project]\nname = 'demo'\ndynamic = ['version']\n")
	store := newStore(t)
	prefix := t.TempDir()
	site := filepath.Join(prefix, "lib", "python3.12", "site-packages")
	os.MkdirAll(site, 0o755)

	r, err := Resolve(editableReq(dir), nil)
	if err != nil {
		t.Fatal(err)
	}
	built, err := NewBuilder(&fakeBackend{name: "demo", version: "0.4"}, store, nil).Build(ctx, r)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := install.New(site, store, nil)
	in.LinkMode = install.LinkCopy
	installed, err := Install(ctx, in, built)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	d := installed.Distribution
	if !d.IsEditable() || d.Version != "0.4" || !d.Requested {
		t.Errorf("installed = %+v", d)
	}
	if _, err := os.Stat(filepath.Join(site, "_demo_editable.pth")); err != nil {
		t.Error("editable wheel contents were not placed")
	}
	if r := sitepackages.Satisfies(editableReq(dir), d, nil); !sitepackages.IsSatisfied(r) {
		t.Errorf("fresh editable: Satisfies = %v", r)
	}

	// Editing the project after install makes the install out of date.
	os.WriteFile(filepath.Join(dir, "demo", "extra.py"), []byte(""), 0o644)
	res := sitepackages.Satisfies(editableReq(dir), d, nil)
	if _, ok := res.(sitepackages.OutOfDate); !ok {
		t.Errorf("edited editable: Satisfies = %v, want out of date", res)
	}
}
