// Package cli implements the stackpip command-line interface.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpip/pkg/build"
	"github.com/matzehuels/stackpip/pkg/buildinfo"
	"github.com/matzehuels/stackpip/pkg/cache"
	"github.com/matzehuels/stackpip/pkg/config"
	"github.com/matzehuels/stackpip/pkg/install"
	"github.com/matzehuels/stackpip/pkg/pipeline"
	"github.com/matzehuels/stackpip/pkg/wheelcache"
)

// appName is the application name used for directories and display.
const appName = "stackpip"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	flags  globalFlags
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "stackpip installs resolved Python requirements into an environment",
		Long:          `stackpip reconciles a virtual environment with a resolved requirement set. Distributions that already match are kept and the rest of the environment is brought in line.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.flags.verbose {
				c.SetLogLevel(LogDebug)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	c.flags.register(root)

	root.AddCommand(c.syncCommand())
	root.AddCommand(c.installCommand())
	root.AddCommand(c.planCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.uninstallCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner wires a pipeline runner for the selected environment from the
// layered configuration. The caller closes it.
func (c *CLI) newRunner(cmd *cobra.Command) (*pipeline.Runner, config.Config, error) {
	ctx := cmd.Context()
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	site, err := c.sitePackages()
	if err != nil {
		return nil, cfg, err
	}
	store, err := wheelcache.New(cfg.WheelDir())
	if err != nil {
		return nil, cfg, err
	}
	fetcher, err := cfg.Fetcher()
	if err != nil {
		return nil, cfg, err
	}
	buildCache, err := openCache(ctx, cfg)
	if err != nil {
		return nil, cfg, err
	}

	logger := loggerFromContext(ctx)
	backend := build.NewCommandBackend(cfg.BuildCommand, logger)
	runner, err := pipeline.NewRunner(site, store, fetcher, backend, buildCache, logger)
	if err != nil {
		buildCache.Close()
		return nil, cfg, err
	}

	runner.Downloader.Options.Concurrency = cfg.Concurrency.Downloads
	runner.Downloader.Options.FailFast = cfg.FailFast
	runner.BuildConcurrency = cfg.Concurrency.Builds
	runner.Editables.Python = cfg.Python

	runner.Installer.Prefix = c.flags.prefix
	runner.Installer.Python = cfg.Python
	runner.Installer.LinkMode = cfg.Mode()
	runner.Installer.Concurrency = cfg.Concurrency.Installs
	if cfg.CompileBytecode {
		runner.Installer.Compiler = install.PythonCompiler{Python: cfg.Python}
	}
	return runner, cfg, nil
}

// openCache opens the build-result cache. An unreachable remote backend
// degrades to no caching rather than failing the command.
func openCache(ctx context.Context, cfg config.Config) (cache.Cache, error) {
	c, err := cache.Open(ctx, cfg.CacheOptions())
	if err != nil {
		if cfg.Cache.Backend == cache.BackendFile {
			return nil, err
		}
		loggerFromContext(ctx).Warn("build cache unavailable, continuing without it", "backend", cfg.Cache.Backend, "err", err)
		return cache.Disabled(), nil
	}
	return c, nil
}
