package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/sitesnap/internal/archive"
	"github.com/nao1215/sitesnap/internal/config"
	"github.com/nao1215/sitesnap/internal/license"
	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/report"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Archive the pages and assets already in the cache",
		Long: `Export packs the current cache into zip archives and clears it once
every archive is delivered.

Use it after a stopped session or to retry a failed delivery. Nothing is
crawled.

Examples:
  # Write archives to the current directory
  sitesnap export

  # Write archives of 100 files each to ./out
  sitesnap export --out out --batch-size 100`,
		Args: cobra.NoArgs,
		RunE: runExportCmd,
	}
	addArchiveFlags(cmd)
	addStorageFlags(cmd)
	return cmd
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	cfg := config.NewConfig()
	if err := applyArchiveFlags(cmd, cfg); err != nil {
		return err
	}
	if err := applyStorageFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.ValidateExport(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	return runExport(cmd.Context(), cfg, logger, cmd.OutOrStdout())
}

// runExport archives the cache of cfg into cfg.OutputDir.
func runExport(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close cache", "error", err)
		}
	}()

	premium := license.Premium(cfg.LicenseKey)
	level := archive.FastCompression
	if premium {
		level = archive.BestCompression
	}
	batcher := archive.NewBatcher(archive.NewDirSink(cfg.OutputDir),
		archive.WithBatchSize(cfg.ArchiveBatchSize),
		archive.WithMaxConcurrent(cfg.MaxConcurrentArchives),
		archive.WithCompressionLevel(level),
		archive.WithLogger(logger),
		archive.WithOnDelivered(func(info model.ArchiveInfo) {
			fmt.Fprintf(out, "Delivered %s (%d files)\n", info.Location, info.Files)
		}),
	)

	started := time.Now()
	archives, err := batcher.Export(ctx, store)
	if errors.Is(err, archive.ErrEmptyCache) {
		return fmt.Errorf("nothing to export: the cache at %s is empty", cacheLocation(cfg, store))
	}

	summary := &model.SessionSummary{
		Session: model.Session{
			ID:        uuid.NewString(),
			StartedAt: started,
			EndedAt:   time.Now(),
			Premium:   premium,
			Status:    model.StatusCompleted,
		},
		Archives: archives,
		Duration: time.Since(started),
	}
	if err != nil {
		summary.Session.Status = model.StatusFailed
		summary.Session.LastError = err.Error()
	}
	if cfg.ReportFile != "" {
		if werr := report.WriteFile(cfg.ReportFile, cfg.ReportFormat, summary); werr != nil {
			logger.Error("failed to write report", "path", cfg.ReportFile, "error", werr)
		}
	}
	if err != nil {
		return fmt.Errorf("export failed, the cache was kept: %w", err)
	}

	fmt.Fprintf(out, "Exported %d archive(s); the cache was cleared.\n", len(archives))
	return nil
}
