package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitesnap/internal/archive"
	"github.com/nao1215/sitesnap/internal/assets"
	"github.com/nao1215/sitesnap/internal/config"
	"github.com/nao1215/sitesnap/internal/crawler"
	"github.com/nao1215/sitesnap/internal/license"
	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/netclient"
	"github.com/nao1215/sitesnap/internal/render"
	"github.com/nao1215/sitesnap/internal/report"
	"github.com/nao1215/sitesnap/internal/resource"
	"github.com/nao1215/sitesnap/internal/robots"
	"github.com/nao1215/sitesnap/internal/session"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Crawl a website and archive every page and asset",
		Long: `Scrape crawls every page of the URL's origin, renders it, downloads the
assets it references and packs the result into zip archives.

Pages are processed in chunks. Press Ctrl+C once to stop after the current
chunk; the cache is kept and can be archived later with "sitesnap export".
Press Ctrl+C again to abort immediately.

Examples:
  # Archive a site with the default HTTP renderer
  sitesnap scrape https://example.com

  # Render JavaScript-heavy pages with headless Chrome
  sitesnap scrape --renderer chrome https://example.com

  # Stop after 100 pages and write a Markdown summary
  sitesnap scrape --max-pages 100 --report report.md https://example.com

  # Crawl an onion service through an existing Tor proxy
  sitesnap scrape --proxy 127.0.0.1:9050 http://exampleonion.onion`,
		Args: cobra.ExactArgs(1),
		RunE: runScrapeCmd,
	}

	cmd.Flags().String("renderer", config.RendererHTTP, "Page renderer: http or chrome")
	cmd.Flags().Int("chunk-size", config.DefaultChunkSize, "Number of pages rendered concurrently")
	cmd.Flags().Duration("chunk-delay", config.DefaultChunkDelay, "Pause between chunks")
	cmd.Flags().Duration("load-timeout", config.DefaultLoadTimeout, "Timeout of a single page load")
	cmd.Flags().Int("max-attempts", config.DefaultMaxAttempts, "Render attempts per page")
	cmd.Flags().Int("max-pages", 0, "Maximum number of pages to crawl (0 = unlimited)")
	cmd.Flags().Float64("asset-rate", config.DefaultAssetRate, "Asset downloads per second")
	cmd.Flags().String("user-agent", config.DefaultUserAgent, "User-Agent header")
	cmd.Flags().String("proxy", "", "SOCKS5 proxy address (host:port)")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")
	cmd.Flags().Bool("respect-robots", false, "Skip pages disallowed by robots.txt")
	addArchiveFlags(cmd)
	addStorageFlags(cmd)

	return cmd
}

func runScrapeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildScrapeConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	return runScrape(cmd.Context(), cfg, logger, cmd.OutOrStdout())
}

// buildScrapeConfig creates a Config from flags and the config file.
func buildScrapeConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.TargetURL = args[0]

	flags := cmd.Flags()
	var err error
	if cfg.Renderer, err = flags.GetString("renderer"); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = flags.GetInt("chunk-size"); err != nil {
		return nil, err
	}
	if cfg.ChunkDelay, err = flags.GetDuration("chunk-delay"); err != nil {
		return nil, err
	}
	if cfg.LoadTimeout, err = flags.GetDuration("load-timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = flags.GetInt("max-attempts"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.AssetRate, err = flags.GetFloat64("asset-rate"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.RespectRobots, err = flags.GetBool("respect-robots"); err != nil {
		return nil, err
	}
	if err := applyArchiveFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyStorageFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runScrape runs one session for cfg.TargetURL and blocks until it ends.
func runScrape(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	origin, err := urlnorm.Origin(cfg.TargetURL)
	if err != nil {
		return err
	}
	site := cfg.SiteConfig(origin)

	premium := license.Premium(cfg.LicenseKey)
	if cfg.LicenseKey != "" && !premium {
		logger.Warn("license key rejected, premium features disabled", "license", cfg.LicenseKey)
		fmt.Fprintln(out, "License key is invalid: premium features are disabled.")
	}

	client, stopTor, err := newClient(ctx, cfg, site, logger, out)
	if err != nil {
		return err
	}
	defer stopTor()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close cache", "error", err)
		}
	}()

	settings := session.Settings{
		ChunkSize:             cfg.ChunkSize,
		ChunkDelay:            cfg.ChunkDelay,
		LoadTimeout:           cfg.LoadTimeout,
		MaxAttempts:           cfg.MaxAttempts,
		RetryBackoff:          cfg.RetryBackoff,
		MaxPages:              cfg.MaxPages,
		BatchSize:             cfg.ArchiveBatchSize,
		MaxConcurrentArchives: cfg.MaxConcurrentArchives,
		Premium:               premium,
	}
	filters := []func(string) bool{crawler.PathFilter(site.IgnorePatterns, site.FollowPatterns)}
	if cfg.RespectRobots {
		agent := robots.Load(ctx, client, origin, userAgent(cfg, site), logger)
		filters = append(filters, agent.Allowed)
		if delay := agent.CrawlDelay(); delay > settings.ChunkDelay {
			settings.ChunkDelay = delay
		}
	}
	settings.Filter = allOf(filters...)

	controller := session.NewController(store, rendererFactory(cfg, client, site, logger),
		archive.NewDirSink(cfg.OutputDir), settings,
		session.WithLogger(logger),
		session.WithObserver(report.NewConsoleObserver(out, cfg.Verbose)),
		session.WithCollector(func(s assets.Store, caps assets.Capabilities) crawler.AssetCollector {
			fetcher := assets.NewFetcher(client, cfg.AssetRate)
			return assets.NewCollector(fetcher, s, caps, assets.WithCollectorLogger(logger))
		}),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopSignals := handleSignals(controller, cancel, logger)
	defer stopSignals()

	if err := controller.Start(runCtx, cfg.TargetURL); err != nil {
		controller.Close()
		return err
	}
	summary, runErr := controller.Wait(context.Background())
	controller.Close()

	printSummary(out, summary)
	if cfg.ReportFile != "" && summary != nil {
		if err := report.WriteFile(cfg.ReportFile, cfg.ReportFormat, summary); err != nil {
			logger.Error("failed to write report", "path", cfg.ReportFile, "error", err)
		} else {
			fmt.Fprintf(out, "Report written to %s\n", cfg.ReportFile)
		}
	}
	return runErr
}

// newClient builds the HTTP client, starting an embedded Tor daemon for
// onion sites when no proxy is configured. The returned function stops
// the daemon.
func newClient(ctx context.Context, cfg *config.Config, site config.SiteConfig, logger *slog.Logger, out io.Writer) (*netclient.Client, func(), error) {
	opts := netclient.Options{
		Timeout:      cfg.LoadTimeout,
		ProxyAddress: cfg.ProxyAddress,
		UserAgent:    userAgent(cfg, site),
		Cookie:       site.Cookie,
		Headers:      site.Headers,
		MaxBodySize:  cfg.MaxBodySize,
	}

	if netclient.IsOnion(cfg.TargetURL) {
		if err := netclient.ValidateOnion(cfg.TargetURL); err != nil {
			return nil, nil, err
		}
	}
	if cfg.ProxyAddress == "" && netclient.IsOnion(cfg.TargetURL) {
		fmt.Fprintln(out, "Starting embedded Tor daemon, this may take a few minutes...")
		tor := netclient.NewEmbeddedTor(netclient.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := tor.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop := func() {
			if err := tor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		logger.Info("embedded Tor daemon started", "socks_addr", tor.SocksAddr())
		client, err := tor.NewClient(opts)
		if err != nil {
			stop()
			return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		cfg.ProxyAddress = tor.SocksAddr()
		return client, stop, nil
	}

	client, err := netclient.New(opts)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ProxyAddress != "" {
		if err := client.CheckProxy(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("proxy check failed for %s: %w", cfg.ProxyAddress, err)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	}
	return client, func() {}, nil
}

// rendererFactory returns the session renderer selected by cfg.Renderer.
func rendererFactory(cfg *config.Config, client *netclient.Client, site config.SiteConfig, logger *slog.Logger) session.RendererFactory {
	return func(reg *resource.Registry) (crawler.Renderer, error) {
		switch cfg.Renderer {
		case config.RendererChrome:
			return render.NewChromeRenderer(render.ChromeOptions{
				UserAgent:    userAgent(cfg, site),
				ProxyAddress: cfg.ProxyAddress,
			}, render.WithChromeLogger(logger), render.WithRegistry(reg)), nil
		case config.RendererHTTP:
			return render.NewHTTPRenderer(client, render.WithHTTPLogger(logger)), nil
		default:
			return nil, config.ErrUnknownRenderer
		}
	}
}

func userAgent(cfg *config.Config, site config.SiteConfig) string {
	if site.UserAgent != "" {
		return site.UserAgent
	}
	return cfg.UserAgent
}

// allOf combines URL filters; nil filters are skipped.
func allOf(filters ...func(string) bool) func(string) bool {
	active := make([]func(string) bool, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(url string) bool {
		for _, f := range active {
			if !f(url) {
				return false
			}
		}
		return true
	}
}

// handleSignals stops the session on the first SIGINT or SIGTERM and
// cancels it on the second.
func handleSignals(controller *session.Controller, cancel context.CancelFunc, logger *slog.Logger) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		stopping := false
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				if stopping {
					logger.Warn("second signal received, aborting")
					cancel()
					return
				}
				stopping = true
				logger.Info("signal received, stopping after the current chunk")
				if err := controller.Stop(); errors.Is(err, session.ErrNothingToStop) {
					cancel()
					return
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// printSummary prints the outcome of a session.
func printSummary(out io.Writer, summary *model.SessionSummary) {
	if summary == nil {
		return
	}
	s := summary.Session
	fmt.Fprintf(out, "\nSession %s %s in %s\n", s.ID, s.Status, summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  pages: %d processed, %d cached, %d failed\n", summary.Pages, summary.CachedPages, len(summary.Failed))
	fmt.Fprintf(out, "  assets: %d\n", summary.Assets)
	for _, a := range summary.Archives {
		fmt.Fprintf(out, "  archive: %s (%d files)\n", a.Location, a.Files)
	}
	if s.Status == model.StatusStopped {
		fmt.Fprintln(out, "The cache was kept. Run \"sitesnap export\" to archive it.")
	}
}
