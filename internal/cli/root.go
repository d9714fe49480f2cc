package cli

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpip/pkg/config"
	"github.com/matzehuels/stackpip/pkg/errors"
)

// globalFlags are the persistent flags shared by every command. Flags win
// over the environment, which wins over the config file.
type globalFlags struct {
	verbose      bool
	configPath   string
	sitePackages string
	prefix       string
	cacheDir     string
	linkMode     string
	python       string
	concurrency  int
	compile      bool
}

func (f *globalFlags) register(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "enable verbose logging")
	pf.StringVar(&f.configPath, "config", "", "config file (default: ./"+config.FileName+" if present)")
	pf.StringVar(&f.sitePackages, "site-packages", "", "target site-packages directory (default: from $VIRTUAL_ENV)")
	pf.StringVar(&f.prefix, "prefix", "", "environment root for scripts and headers (default: derived from --site-packages)")
	pf.StringVar(&f.cacheDir, "cache-dir", "", "cache directory (default: ~/.cache/"+appName+")")
	pf.StringVar(&f.linkMode, "link-mode", "", "how files are placed: hardlink, copy or symlink")
	pf.StringVar(&f.python, "python", "", "interpreter for shebangs, builds and bytecode compilation")
	pf.IntVarP(&f.concurrency, "concurrency", "j", 0, "parallel downloads and installs")
	pf.BoolVar(&f.compile, "compile", false, "compile bytecode after installing")
}

// loadConfig layers the config file, STACKPIP_* variables and flags, then
// fills defaults and validates the result.
func (c *CLI) loadConfig(cmd *cobra.Command) (config.Config, error) {
	file, err := config.Load(c.flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := file.FromEnv()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.CacheDir = c.flags.cacheDir
	}
	if flags.Changed("link-mode") {
		cfg.LinkMode = c.flags.linkMode
	}
	if flags.Changed("python") {
		cfg.Python = c.flags.python
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency.Downloads = c.flags.concurrency
		cfg.Concurrency.Installs = c.flags.concurrency
	}
	if flags.Changed("compile") {
		cfg.CompileBytecode = c.flags.compile
	}
	if cfg.Python == "" {
		if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
			cfg.Python = filepath.Join(venv, "bin", "python")
		}
	}

	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// sitePackages returns the target directory: --site-packages, else the
// single lib/python*/site-packages of the active virtualenv.
func (c *CLI) sitePackages() (string, error) {
	if c.flags.sitePackages != "" {
		return filepath.Abs(c.flags.sitePackages)
	}
	venv := os.Getenv("VIRTUAL_ENV")
	if venv == "" {
		return "", errors.New(errors.ErrCodeEnvironment, "no target environment: pass --site-packages or activate a virtualenv")
	}
	matches, _ := filepath.Glob(filepath.Join(venv, "lib", "python*", "site-packages"))
	switch len(matches) {
	case 0:
		return "", errors.New(errors.ErrCodeEnvironment, "no site-packages directory under %s", venv)
	case 1:
		return matches[0], nil
	}
	sort.Strings(matches)
	return "", errors.New(errors.ErrCodeEnvironment, "several site-packages directories under %s (%s); pass --site-packages", venv, strings.Join(matches, ", "))
}

// pythonVersion extracts "3.12" from .../lib/python3.12/site-packages.
func pythonVersion(site string) string {
	dir := filepath.Base(filepath.Dir(filepath.Clean(site)))
	if v, ok := strings.CutPrefix(dir, "python"); ok {
		return v
	}
	return ""
}
