package uninstall

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/stackpip/internal/wheeltest"
	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/install"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
	"github.com/matzehuels/stackpip/pkg/wheelcache"
)

// installDemo installs a small wheel into a fresh environment and returns
// the environment prefix, its site-packages and the installed distribution.
func installDemo(t *testing.T) (string, string, *sitepackages.Distribution) {
	t.Helper()
	prefix, site, d, _ := installDemoLinked(t, install.LinkCopy)
	return prefix, site, d
}

func installDemoLinked(t *testing.T, mode install.LinkMode) (string, string, *sitepackages.Distribution, *wheelcache.Store) {
	t.Helper()
	prefix := t.TempDir()
	site := filepath.Join(prefix, "lib", "python3.12", "site-packages")
	if err := os.MkdirAll(site, 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := wheelcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path := wheeltest.Build(t, t.TempDir(), "demo", "1.0", map[string]string{
		"demo/__init__.py":               "",
		"demo/util.py":                   "y = 2\n",
		"demo/sub/deep.py":               "z = 3\n",
		"demo-1.0.data/scripts/demo-cli": "#!python\nimport demo\n",
	})
	fn, err := dist.ParseWheelFilename(path)
	if err != nil {
		t.Fatal(err)
	}
	w := dist.Wheel{Requirement: dist.Requirement{Name: "demo"}, Filename: fn, Path: path}

	in := install.New(site, store, nil)
	in.LinkMode = mode
	in.Python = "/usr/bin/python3"
	d, err := in.InstallOne(context.Background(), install.Item{Wheel: w})
	if err != nil {
		t.Fatalf("InstallOne: %v", err)
	}
	return prefix, site, d, store
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func TestUninstall(t *testing.T) {
	prefix, site, d := installDemo(t)

	pycache := filepath.Join(site, "demo", "__pycache__")
	os.MkdirAll(pycache, 0o755)
	pyc := filepath.Join(pycache, "util.cpython-312.pyc")
	os.WriteFile(pyc, []byte("bytecode"), 0o644)

	res, err := Uninstall(context.Background(), d, Options{})
	if err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if len(res.Skipped) != 0 || len(res.Missing) != 0 {
		t.Errorf("skipped %v, missing %v", res.Skipped, res.Missing)
	}

	for _, p := range []string{
		filepath.Join(site, "demo"),
		filepath.Join(site, "demo-1.0.dist-info"),
		filepath.Join(prefix, "bin", "demo-cli"),
		pyc,
	} {
		if exists(p) {
			t.Errorf("%s should be gone", p)
		}
	}
	if !exists(site) {
		t.Error("site-packages itself must survive")
	}
	if !exists(filepath.Join(prefix, "bin")) {
		t.Error("bin/ is shared with the environment and must survive")
	}

	sp, err := sitepackages.Scan(context.Background(), site)
	if err != nil {
		t.Fatal(err)
	}
	if sp.Len() != 0 {
		t.Errorf("scan after uninstall found %v", sp.Distributions())
	}
}

func TestUninstallDanglingSymlinks(t *testing.T) {
	_, site, d, store := installDemoLinked(t, install.LinkSymlink)
	link := filepath.Join(site, "demo", "util.py")
	if info, err := os.Lstat(link); err != nil || info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected %s to be a symlink", link)
	}

	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}

	res, err := Uninstall(context.Background(), d, Options{})
	if err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("skipped %v", res.Skipped)
	}
	for _, p := range []string{link, filepath.Join(site, "demo"), filepath.Join(site, "demo-1.0.dist-info")} {
		if exists(p) {
			t.Errorf("%s still present", p)
		}
	}
}

func TestUninstallSkipsModifiedFiles(t *testing.T) {
	_, site, d := installDemo(t)
	util := filepath.Join(site, "demo", "util.py")
	if err := os.WriteFile(util, []byte("edited by hand\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Uninstall(context.Background(), d, Options{})
	if err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Path != util {
		t.Fatalf("Skipped = %v", res.Skipped)
	}
	if !exists(util) {
		t.Error("modified file must be left in place")
	}
	if exists(filepath.Join(site, "demo", "__init__.py")) {
		t.Error("unmodified files should still be removed")
	}
	if exists(filepath.Join(site, "demo-1.0.dist-info", "RECORD")) {
		t.Error("RECORD should be removed once every other entry is handled")
	}
}

func TestUninstallMissingFiles(t *testing.T) {
	_, site, d := installDemo(t)
	deep := filepath.Join(site, "demo", "sub", "deep.py")
	os.Remove(deep)

	res, err := Uninstall(context.Background(), d, Options{})
	if err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if len(res.Missing) != 1 || res.Missing[0] != deep {
		t.Errorf("Missing = %v", res.Missing)
	}
	if exists(filepath.Join(site, "demo", "sub")) {
		t.Error("empty directory left behind")
	}
}

func TestUninstallManifestMissing(t *testing.T) {
	site := t.TempDir()
	info := filepath.Join(site, "demo-1.0.dist-info")
	os.MkdirAll(info, 0o755)

	d := &sitepackages.Distribution{Name: "demo", Version: "1.0", Root: site, Path: info}
	_, err := Uninstall(context.Background(), d, Options{})
	if !errors.Is(err, errors.ErrCodeManifestMissing) {
		t.Errorf("err = %v, want MANIFEST_MISSING", err)
	}
	if !exists(info) {
		t.Error("nothing should be removed without a manifest")
	}
}

func TestUninstallRejectsEscapingEntries(t *testing.T) {
	prefix := t.TempDir()
	site := filepath.Join(prefix, "lib", "python3.12", "site-packages")
	info := filepath.Join(site, "demo-1.0.dist-info")
	os.MkdirAll(info, 0o755)
	os.WriteFile(filepath.Join(info, "RECORD"), []byte("x"), 0o644)

	outside := filepath.Join(t.TempDir(), "victim.txt")
	os.WriteFile(outside, []byte("keep"), 0o644)
	rel, err := filepath.Rel(site, outside)
	if err != nil {
		t.Fatal(err)
	}

	d := &sitepackages.Distribution{
		Name: "demo", Version: "1.0", Root: site, Path: info,
		Record: []sitepackages.RecordEntry{
			{Path: filepath.ToSlash(rel)},
			{Path: "demo-1.0.dist-info/RECORD"},
		},
	}
	_, err = Uninstall(context.Background(), d, Options{Prefix: prefix})
	if !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Fatalf("err = %v, want INVALID_PATH", err)
	}
	var ue *UninstallError
	if !stderrors.As(err, &ue) || ue.ID != "demo==1.0" {
		t.Errorf("err should be an *UninstallError for demo==1.0: %v", err)
	}
	if !exists(outside) {
		t.Error("file outside the environment was removed")
	}
	if !exists(filepath.Join(info, "RECORD")) {
		t.Error("RECORD must survive a failed uninstall")
	}
}
