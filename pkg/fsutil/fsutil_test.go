package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	digest, size, err := FileDigest(path)
	if err != nil {
		t.Fatal(err)
	}
	// sha256("hello") in urlsafe base64 without padding
	want := "sha256=LPJNul-wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ"
	if digest != want {
		t.Errorf("digest = %q, want %q", digest, want)
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	os.WriteFile(path, []byte("hello"), 0o644)

	got, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("HashFile = %q, want %q", got, want)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "RECORD")

	if err := WriteFileAtomic(path, []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q, want %q", data, "two")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.py")
	dst := filepath.Join(dir, "out", "dst.py")
	os.WriteFile(src, []byte("print(1)"), 0o644)

	if err := CopyFile(src, dst, 0o644); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "print(1)" {
		t.Errorf("copied content = %q", data)
	}
}

func TestRemoveEmptyParents(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(root, "a", "keep.txt")
	os.WriteFile(keep, nil, 0o644)

	removed := RemoveEmptyParents(deep, root)
	if len(removed) != 2 {
		t.Fatalf("removed %v, want c and b", removed)
	}
	if _, err := os.Stat(filepath.Join(root, "a")); err != nil {
		t.Error("non-empty parent should survive")
	}
	if _, err := os.Stat(root); err != nil {
		t.Error("stop directory must never be removed")
	}
}
