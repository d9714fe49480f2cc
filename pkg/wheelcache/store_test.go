package wheelcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/stackpip/internal/wheeltest"
	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func registryReq(name, spec string) dist.Requirement {
	return dist.Requirement{Name: dist.NormalizeName(name), Specifier: dist.MustSpecifier(spec)}
}

// seed builds a wheel in tmp/ and promotes it for req.
func seed(t *testing.T, s *Store, req dist.Requirement, version string) dist.Wheel {
	t.Helper()
	dir, err := s.TempDir("seed-*")
	if err != nil {
		t.Fatal(err)
	}
	path := wheeltest.Build(t, dir, string(req.Name), version, nil)
	w, err := s.Promote(path, req, filepath.Base(path))
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	return w
}

func TestLookupRegistry(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	if _, ok := s.Lookup(ctx, registryReq("demo", "==1.0")); ok {
		t.Fatal("empty store should miss")
	}

	seed(t, s, registryReq("demo", "==1.0"), "1.0")
	seed(t, s, registryReq("demo", "==2.0"), "2.0")

	tests := []struct {
		spec string
		want string
		hit  bool
	}{
		{"==1.0", "1.0", true},
		{"==2.0", "2.0", true},
		{">=1.0", "2.0", true},
		{"<2", "1.0", true},
		{"==3.0", "", false},
	}
	for _, tt := range tests {
		w, ok := s.Lookup(ctx, registryReq("demo", tt.spec))
		if ok != tt.hit {
			t.Errorf("Lookup(%s) hit = %v, want %v", tt.spec, ok, tt.hit)
			continue
		}
		if ok && w.Version() != tt.want {
			t.Errorf("Lookup(%s) = %s, want %s", tt.spec, w.Version(), tt.want)
		}
	}
}

func TestLookupHonoursHashes(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	w := seed(t, s, registryReq("demo", "==1.0"), "1.0")

	tests := []struct {
		name   string
		hashes []dist.Hash
		hit    bool
	}{
		{"no hashes", nil, true},
		{"matching", []dist.Hash{{Algorithm: "sha256", Digest: w.Hash}}, true},
		{"mismatch", []dist.Hash{{Algorithm: "sha256", Digest: strings.Repeat("0", 64)}}, false},
		{"unsupported algorithm", []dist.Hash{{Algorithm: "md5", Digest: "abc"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := registryReq("demo", "==1.0")
			req.Hashes = tt.hashes
			if _, ok := s.Lookup(ctx, req); ok != tt.hit {
				t.Errorf("Lookup hit = %v, want %v", ok, tt.hit)
			}
		})
	}
}

func TestLookupLocalWheelHashMismatch(t *testing.T) {
	s := newStore(t)
	path := wheeltest.Build(t, t.TempDir(), "demo", "1.0", nil)
	req := dist.Requirement{
		Name:   "demo",
		Source: dist.Source{Kind: dist.SourcePath, Path: path},
		Hashes: []dist.Hash{{Algorithm: "sha256", Digest: strings.Repeat("0", 64)}},
	}
	if _, ok := s.Lookup(context.Background(), req); ok {
		t.Error("local wheel with a mismatching hash should miss")
	}
}

func TestLookupURLIsolated(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	a := dist.Requirement{Name: "demo", Source: dist.Source{Kind: dist.SourceURL, URL: "https://a.example/demo-1.0-py3-none-any.whl"}}
	b := dist.Requirement{Name: "demo", Source: dist.Source{Kind: dist.SourceURL, URL: "https://b.example/demo-1.0-py3-none-any.whl"}}
	seed(t, s, a, "1.0")

	if _, ok := s.Lookup(ctx, a); !ok {
		t.Error("URL requirement should hit its own entry")
	}
	if _, ok := s.Lookup(ctx, b); ok {
		t.Error("different URL should miss")
	}
	if _, ok := s.Lookup(ctx, registryReq("demo", "==1.0")); ok {
		t.Error("URL artifacts must not serve registry requirements")
	}
}

func TestLookupLocalWheel(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	path := wheeltest.Build(t, t.TempDir(), "demo", "1.0", nil)

	req := dist.Requirement{Name: "demo", Source: dist.Source{Kind: dist.SourcePath, Path: path}}
	w, ok := s.Lookup(ctx, req)
	if !ok || w.Path != path {
		t.Fatalf("local wheel should be served in place, got %v %v", w.Path, ok)
	}

	editable := dist.Requirement{Name: "demo", Source: dist.Source{Kind: dist.SourceEditable, Path: filepath.Dir(path)}}
	if _, ok := s.Lookup(ctx, editable); ok {
		t.Error("editables never hit the cache")
	}
}

func TestPromoteRejectsForeignWheel(t *testing.T) {
	s := newStore(t)
	dir, _ := s.TempDir("x-*")
	path := wheeltest.Build(t, dir, "other", "1.0", nil)

	_, err := s.Promote(path, registryReq("demo", "==1.0"), filepath.Base(path))
	if !errors.Is(err, errors.ErrCodeFetch) {
		t.Errorf("expected FETCH_ERROR, got %v", err)
	}
}

func TestPruneAndClear(t *testing.T) {
	s := newStore(t)
	f, err := s.TempFile("partial-*")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	n, err := s.Prune()
	if err != nil || n != 1 {
		t.Errorf("Prune = %d, %v; want 1", n, err)
	}
	if _, err := os.Stat(f.Name()); !os.IsNotExist(err) {
		t.Error("temp file should be gone")
	}

	seed(t, s, registryReq("demo", "==1.0"), "1.0")
	wheels, _ := s.Wheels()
	if len(wheels) != 1 {
		t.Fatalf("Wheels = %v", wheels)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if wheels, _ := s.Wheels(); len(wheels) != 0 {
		t.Errorf("Clear left %v", wheels)
	}
}
