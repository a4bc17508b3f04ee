package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/sitesnap/internal/archive"
	"github.com/nao1215/sitesnap/internal/crawler"
	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// Step names.
const (
	StepCrawl   = "crawl"
	StepSitemap = "sitemap"
	StepExport  = "export"
)

// CrawlStep runs the scheduler until the frontier drains.
type CrawlStep struct {
	scheduler *crawler.Scheduler
}

// NewCrawlStep creates the crawl phase.
func NewCrawlStep(scheduler *crawler.Scheduler) *CrawlStep {
	return &CrawlStep{scheduler: scheduler}
}

// Name implements Step.
func (s *CrawlStep) Name() string { return StepCrawl }

// Do implements Step. A crawl that ended early returns ErrStopped.
func (s *CrawlStep) Do(ctx context.Context, state *State) error {
	result, err := s.scheduler.Run(ctx, state.Seed)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", state.Seed, err)
	}
	state.Crawl = result

	if err := ctx.Err(); err != nil {
		return err
	}
	if result.Stopped {
		return ErrStopped
	}
	return nil
}

// PageSource lists cached pages and accepts the manifest.
type PageSource interface {
	ListPages(ctx context.Context) ([]model.PageResult, error)
	PutFile(ctx context.Context, file model.CachedFile) error
}

// SitemapStep writes sitemap.json listing every cached page of the origin.
type SitemapStep struct {
	cache  PageSource
	logger *slog.Logger
	now    func() time.Time
}

// NewSitemapStep creates the manifest phase.
func NewSitemapStep(cache PageSource, logger *slog.Logger) *SitemapStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapStep{cache: cache, logger: logger, now: time.Now}
}

// Name implements Step.
func (s *SitemapStep) Name() string { return StepSitemap }

// Do implements Step.
func (s *SitemapStep) Do(ctx context.Context, state *State) error {
	origin, err := urlnorm.Origin(state.Seed)
	if err != nil {
		return err
	}

	pages, err := s.cache.ListPages(ctx)
	if err != nil {
		return fmt.Errorf("list cached pages: %w", err)
	}

	sitemap := model.Sitemap{
		BaseURL:     origin,
		GeneratedAt: s.now().UTC(),
		Pages:       make([]model.SitemapEntry, 0, len(pages)),
	}
	for _, page := range pages {
		if !urlnorm.IsSameOrigin(page.URL, origin) {
			continue
		}
		path, err := urlnorm.PathFor(page.URL)
		if err != nil {
			s.logger.Warn("skipping page in sitemap", "url", page.URL, "error", err)
			continue
		}
		sitemap.Pages = append(sitemap.Pages, model.SitemapEntry{
			URL:    page.URL,
			Title:  page.Title,
			Path:   path,
			Digest: model.Digest([]byte(page.HTML)),
		})
	}
	sitemap.TotalPages = len(sitemap.Pages)

	file, err := sitemap.CachedFile()
	if err != nil {
		return fmt.Errorf("encode sitemap: %w", err)
	}
	if err := s.cache.PutFile(ctx, file); err != nil {
		return fmt.Errorf("store sitemap: %w", err)
	}

	state.Sitemap = &sitemap
	return nil
}

// ExportStep packs the cache into archives and clears it.
type ExportStep struct {
	batcher *archive.Batcher
	source  archive.Source
}

// NewExportStep creates the export phase.
func NewExportStep(batcher *archive.Batcher, source archive.Source) *ExportStep {
	return &ExportStep{batcher: batcher, source: source}
}

// Name implements Step.
func (s *ExportStep) Name() string { return StepExport }

// Do implements Step.
func (s *ExportStep) Do(ctx context.Context, state *State) error {
	archives, err := s.batcher.Export(ctx, s.source)
	state.Archives = archives
	return err
}
