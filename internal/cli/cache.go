package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpip/pkg/cache"
	"github.com/matzehuels/stackpip/pkg/config"
	"github.com/matzehuels/stackpip/pkg/wheelcache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the wheel and build caches",
	}

	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheListCommand())
	cmd.AddCommand(c.cachePruneCommand())
	cmd.AddCommand(c.cacheClearCommand())

	return cmd
}

// openStore loads the configuration and opens the wheel store.
func (c *CLI) openStore(cmd *cobra.Command) (*wheelcache.Store, config.Config, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	store, err := wheelcache.New(cfg.WheelDir())
	return store, cfg, err
}

func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, cfg.CacheDir)
			return nil
		},
	}
}

func (c *CLI) cacheListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached wheels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			wheels, err := store.Wheels()
			if err != nil {
				return err
			}
			for _, w := range wheels {
				fmt.Fprintln(out, w)
			}
			printDetail("%d wheels in %s", len(wheels), store.Root())
			return nil
		},
	}
}

func (c *CLI) cachePruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove leftovers of interrupted downloads and builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			n, err := store.Prune()
			if err != nil {
				return err
			}
			printSuccess("Pruned %d entries", n)
			return nil
		},
	}
}

func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached wheel and build result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return err
			}
			// Remote build caches expire on their own TTL.
			if cfg.Cache.Backend == cache.BackendFile {
				if err := os.RemoveAll(cfg.CacheOptions().Dir); err != nil {
					return err
				}
			}
			printSuccess("Cache cleared")
			printKeyValue("Directory", cfg.CacheDir)
			return nil
		},
	}
}
