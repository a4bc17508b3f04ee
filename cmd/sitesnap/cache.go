package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitesnap/internal/config"
)

// NewCacheCmd creates the cache command and its subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the page cache",
		Long: `The cache holds rendered pages and downloaded assets between runs.
It is cleared automatically after a successful export.`,
	}
	cmd.AddCommand(newCacheStatusCmd())
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the cache holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.NewConfig()
			if err := applyStorageFlags(cmd, cfg); err != nil {
				return err
			}
			logger := setupLogger(cfg.Verbose)

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("failed to close cache", "error", err)
				}
			}()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read cache: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache: %s\n", cacheLocation(cfg, store))
			fmt.Fprintf(out, "  pages: %d\n", stats.Pages)
			fmt.Fprintf(out, "  files: %d\n", stats.Files)
			fmt.Fprintf(out, "  bytes: %d\n", stats.Bytes)
			return nil
		},
	}
	addStorageFlags(cmd)
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached page and file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.NewConfig()
			if err := applyStorageFlags(cmd, cfg); err != nil {
				return err
			}
			logger := setupLogger(cfg.Verbose)

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("failed to close cache", "error", err)
				}
			}()

			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared cache: %s\n", cacheLocation(cfg, store))
			return nil
		},
	}
	addStorageFlags(cmd)
	return cmd
}
