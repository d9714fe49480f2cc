package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/stackpip/internal/wheeltest"
)

// execute runs the root command with args and returns what was printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf, logs bytes.Buffer
	prev := out
	out = &buf
	defer func() { out = prev }()

	c := New(&logs, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(&buf)
	root.SetErr(&buf)
	err := root.Execute()
	return buf.String(), err
}

// venv lays out <dir>/venv/lib/python3.12/site-packages.
func venv(t *testing.T, dir string) string {
	t.Helper()
	site := filepath.Join(dir, "venv", "lib", "python3.12", "site-packages")
	if err := os.MkdirAll(site, 0o755); err != nil {
		t.Fatal(err)
	}
	return site
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	site := venv(t, dir)
	cacheDir := filepath.Join(dir, "cache")
	t.Setenv("STACKPIP_CACHE_BACKEND", "")

	whl := wheeltest.Build(t, dir, "demo", "1.0", map[string]string{"demo/__init__.py": "x = 1\n"})
	reqs := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(reqs, []byte("./"+filepath.Base(whl)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	global := []string{"--site-packages", site, "--cache-dir", cacheDir, "--link-mode", "copy"}
	run := func(t *testing.T, args ...string) string {
		t.Helper()
		got, err := execute(t, append(append([]string{}, global...), args...)...)
		if err != nil {
			t.Fatalf("%v: %v\n%s", args, err, got)
		}
		return got
	}

	t.Run("sync installs", func(t *testing.T) {
		got := run(t, "sync", "--no-progress", reqs)
		if !strings.Contains(got, "+ demo==1.0") {
			t.Errorf("output %q missing the addition", got)
		}
		if _, err := os.Stat(filepath.Join(site, "demo", "__init__.py")); err != nil {
			t.Errorf("module not installed: %v", err)
		}
	})

	t.Run("sync is idempotent", func(t *testing.T) {
		got := run(t, "sync", "--no-progress", reqs)
		if !strings.Contains(got, "already up to date (1 reused)") {
			t.Errorf("output %q, want nothing to do", got)
		}
	})

	t.Run("plan reinstall", func(t *testing.T) {
		got := run(t, "plan", "--reinstall", reqs)
		if !strings.Contains(got, "replace") || !strings.Contains(got, "reinstall requested") {
			t.Errorf("plan output %q", got)
		}
	})

	t.Run("list", func(t *testing.T) {
		got := run(t, "list", "--check")
		if !strings.Contains(got, "demo") || !strings.Contains(got, "1.0") {
			t.Errorf("list output %q", got)
		}
		if !strings.Contains(got, "No problems found") {
			t.Errorf("list --check output %q", got)
		}
	})

	t.Run("cache", func(t *testing.T) {
		if got := run(t, "cache", "path"); strings.TrimSpace(got) != cacheDir {
			t.Errorf("cache path = %q, want %q", got, cacheDir)
		}
		if got := run(t, "cache", "list"); !strings.Contains(got, filepath.Base(whl)) {
			t.Errorf("cache list = %q", got)
		}
	})

	t.Run("uninstall", func(t *testing.T) {
		got := run(t, "uninstall", "demo", "missing-pkg")
		if !strings.Contains(got, "Uninstalled demo==1.0") || !strings.Contains(got, "missing-pkg is not installed") {
			t.Errorf("uninstall output %q", got)
		}
		if _, err := os.Stat(filepath.Join(site, "demo")); !os.IsNotExist(err) {
			t.Errorf("package dir still present: %v", err)
		}
	})
}

func TestSyncReportsFailures(t *testing.T) {
	dir := t.TempDir()
	site := venv(t, dir)
	reqs := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(reqs, []byte("ghost==1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := execute(t, "--site-packages", site, "--cache-dir", filepath.Join(dir, "cache"), "sync", "--no-progress", reqs)
	if err == nil {
		t.Fatalf("sync succeeded, output %q", got)
	}
	if !strings.Contains(err.Error(), "1 of 1 requirements failed") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(got, "ghost==1.0") {
		t.Errorf("output %q does not name the failed requirement", got)
	}
}

func TestSitePackagesFromVirtualEnv(t *testing.T) {
	dir := t.TempDir()
	site := venv(t, dir)
	t.Setenv("VIRTUAL_ENV", filepath.Join(dir, "venv"))

	c := New(&bytes.Buffer{}, LogInfo)
	got, err := c.sitePackages()
	if err != nil {
		t.Fatalf("sitePackages: %v", err)
	}
	if got != site {
		t.Errorf("sitePackages = %q, want %q", got, site)
	}

	t.Setenv("VIRTUAL_ENV", "")
	if _, err := c.sitePackages(); err == nil {
		t.Error("sitePackages without a virtualenv succeeded")
	}
}

func TestPythonVersion(t *testing.T) {
	tests := map[string]string{
		"/venv/lib/python3.12/site-packages": "3.12",
		"/venv/lib/site-packages":            "",
		"/opt/site":                          "",
	}
	for site, want := range tests {
		if got := pythonVersion(site); got != want {
			t.Errorf("pythonVersion(%q) = %q, want %q", site, got, want)
		}
	}
}

func TestConfigLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stackpip.yaml")
	if err := os.WriteFile(path, []byte("link_mode: symlink\nconcurrency:\n  builds: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STACKPIP_CONCURRENT_BUILDS", "3")
	t.Setenv("STACKPIP_LINK_MODE", "")

	c := New(&bytes.Buffer{}, LogInfo)
	root := c.RootCommand()
	root.SetArgs([]string{"--config", path, "--link-mode", "copy", "cache", "path"})
	var buf bytes.Buffer
	prev := out
	out = &buf
	defer func() { out = prev }()
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}

	cmd, _, err := root.Find([]string{"cache", "path"})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LinkMode != "copy" {
		t.Errorf("LinkMode = %q, want the flag value", cfg.LinkMode)
	}
	if cfg.Concurrency.Builds != 3 {
		t.Errorf("Builds = %d, want the environment value", cfg.Concurrency.Builds)
	}
}
