package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitesnap/internal/config"
	"github.com/nao1215/sitesnap/internal/database"
	sitelog "github.com/nao1215/sitesnap/internal/log"
)

// addStorageFlags registers the flags shared by scrape, export and cache.
func addStorageFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitesnap.yaml in current or home directory)")
	cmd.Flags().String("cache-dir", config.XDGCacheDir(), "Directory of the SQLite page cache")
	cmd.Flags().String("cache-backend", config.CacheBackendSQLite, "Cache backend: sqlite or redis")
	cmd.Flags().String("redis-addr", "", "Redis address used by the redis cache backend")
}

// addArchiveFlags registers the flags shared by scrape and export.
func addArchiveFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("out", "o", config.DefaultOutputDir, "Directory the archives are written to")
	cmd.Flags().Int("batch-size", config.DefaultArchiveBatchSize, "Number of files per archive")
	cmd.Flags().Int("max-concurrent", config.DefaultMaxConcurrentArchives, "Maximum number of archives built at once")
	cmd.Flags().String("license", "", "License key enabling premium features")
	cmd.Flags().String("report", "", "Write a session summary to this file")
	cmd.Flags().String("report-format", config.ReportFormatMarkdown, "Summary format: markdown or json")
}

// applyStorageFlags copies the storage flags into cfg and loads the
// configuration file.
func applyStorageFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if cfg.ConfigFilePath, err = cmd.Flags().GetString("config"); err != nil {
		return err
	}
	if cfg.CacheDir, err = cmd.Flags().GetString("cache-dir"); err != nil {
		return err
	}
	if cfg.CacheBackend, err = cmd.Flags().GetString("cache-backend"); err != nil {
		return err
	}
	if cfg.RedisAddr, err = cmd.Flags().GetString("redis-addr"); err != nil {
		return err
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return loadConfigFile(cfg)
}

// applyArchiveFlags copies the archive flags into cfg.
func applyArchiveFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if cfg.OutputDir, err = cmd.Flags().GetString("out"); err != nil {
		return err
	}
	if cfg.ArchiveBatchSize, err = cmd.Flags().GetInt("batch-size"); err != nil {
		return err
	}
	if cfg.MaxConcurrentArchives, err = cmd.Flags().GetInt("max-concurrent"); err != nil {
		return err
	}
	if cfg.LicenseKey, err = cmd.Flags().GetString("license"); err != nil {
		return err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("report"); err != nil {
		return err
	}
	if cfg.ReportFormat, err = cmd.Flags().GetString("report-format"); err != nil {
		return err
	}
	return nil
}

// loadConfigFile applies the configuration file, if any. A file named
// with --config must exist.
func loadConfigFile(cfg *config.Config) error {
	path := config.FindConfigFile(cfg.ConfigFilePath)
	if path == "" {
		if cfg.ConfigFilePath != "" {
			return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
		}
		return nil
	}
	file, err := config.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	cfg.ApplyFile(file)
	return nil
}

// getVerboseFlag reads the persistent verbose flag.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the process logger and makes it the default.
func setupLogger(verbose bool) *slog.Logger {
	logger := sitelog.NewLogger(os.Stderr, verbose)
	slog.SetDefault(logger)
	return logger
}

// openStore opens the configured cache backend.
func openStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		store, err := database.OpenRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis cache: %w", err)
		}
		return store, nil
	case config.CacheBackendSQLite:
		store, err := database.Open(cfg.CacheDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		return store, nil
	default:
		return nil, config.ErrUnknownCacheBackend
	}
}

// cacheLocation describes where the cache lives, for messages.
func cacheLocation(cfg *config.Config, store database.Store) string {
	if db, ok := store.(*database.CacheDB); ok {
		return db.Path()
	}
	if cfg.CacheBackend == config.CacheBackendRedis {
		return "redis://" + cfg.RedisAddr
	}
	return cfg.CacheDir
}
