package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"igaudience/pkg/audience"
	"igaudience/pkg/cache"
	"igaudience/pkg/instagram"
	"igaudience/pkg/ui"
)

var clearAudience bool

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the scraper result cache",
}

// cacheClearCmd represents the cache clear command
var cacheClearCmd = &cobra.Command{
	Use:   "clear [key]",
	Short: "Remove cached scraper results",
	Long: `Remove one cache entry, or every entry when no key is given.

With --audience the argument is a brand handle and its stored audience pool
is removed.`,
	Example: `  # Clear everything
  igaudience cache clear

  # Forget the audience pool collected for nike
  igaudience cache clear nike --audience`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().BoolVar(&clearAudience, "audience", false, "treat the key as a brand handle and clear its audience pool")
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(nil)
	if err != nil {
		return err
	}
	c, err := cache.New(cfg.Cache, cache.Options{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}

	ctx := context.Background()
	if len(args) == 0 {
		if err := c.InvalidateAll(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		ui.PrintSuccess(fmt.Sprintf("Cleared %s cache", c.Backend()))
		return nil
	}

	key := args[0]
	if clearAudience {
		key = audience.CacheKey(instagram.SanitizeUsername(key))
	}
	if err := c.Invalidate(ctx, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	ui.PrintSuccess("Removed " + key)
	return nil
}
