package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTreeFingerprint(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pyproject.toml":  "[project]\nname = \"app\"\n",
		"app/__init__.py": "VERSION = 1\n",
	})

	first, err := TreeFingerprint(root)
	if err != nil {
		t.Fatal(err)
	}

	// Build outputs and caches do not count.
	writeTree(t, root, map[string]string{
		"build/lib/app/__init__.py":           "junk",
		"app/__pycache__/__init__.cpython.pyc": "junk",
		"app.egg-info/PKG-INFO":               "junk",
		".git/HEAD":                           "ref",
	})
	second, err := TreeFingerprint(root)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("ignored directories changed the fingerprint")
	}

	writeTree(t, root, map[string]string{"app/__init__.py": "VERSION = 2\n"})
	third, _ := TreeFingerprint(root)
	if third == first {
		t.Error("content change did not change the fingerprint")
	}
}

func TestTreeFingerprintNestedBuildPackages(t *testing.T) {
	tests := []string{
		"src/mytool/build/__init__.py",
		"src/build/__init__.py",
		"mytool/dist/util.py",
		"mytool/venv/helpers.py",
	}

	for _, rel := range tests {
		t.Run(rel, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, map[string]string{
				"pyproject.toml": "[project]\nname = \"mytool\"\n",
				rel:              "A = 1\n",
			})
			before, err := TreeFingerprint(root)
			if err != nil {
				t.Fatal(err)
			}

			writeTree(t, root, map[string]string{rel: "A = 2\n"})
			after, err := TreeFingerprint(root)
			if err != nil {
				t.Fatal(err)
			}
			if before == after {
				t.Errorf("editing %s did not change the fingerprint", rel)
			}
		})
	}
}

func TestTreeFingerprintMissing(t *testing.T) {
	if _, err := TreeFingerprint(filepath.Join(t.TempDir(), "gone")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestFingerprintCache(t *testing.T) {
	calls := 0
	fc := NewFingerprintCache(FingerprintFunc(func(dir string) (string, error) {
		calls++
		return "fp-" + filepath.Base(dir), nil
	}))

	for range 3 {
		fp, err := fc.Fingerprint("/src/app/")
		if err != nil || fp != "fp-app" {
			t.Fatalf("Fingerprint = %q, %v", fp, err)
		}
	}
	if calls != 1 {
		t.Errorf("inner called %d times, want 1", calls)
	}

	fc.Forget("/src/app")
	fc.Fingerprint("/src/app")
	if calls != 2 {
		t.Errorf("Forget did not invalidate, calls = %d", calls)
	}
}
