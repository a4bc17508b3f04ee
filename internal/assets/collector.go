package assets

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// Store is the part of the file cache the collector needs.
type Store interface {
	HasFile(ctx context.Context, path string) (bool, error)
	PutFile(ctx context.Context, file model.CachedFile) error
}

// Collector extracts, downloads and caches the assets of rendered pages.
// An asset is downloaded at most once per collector.
type Collector struct {
	extractor *Extractor
	fetcher   *Fetcher
	store     Store
	caps      Capabilities
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithCollectorLogger sets the logger.
func WithCollectorLogger(logger *slog.Logger) CollectorOption {
	return func(c *Collector) {
		c.logger = logger
	}
}

// NewCollector creates a collector.
func NewCollector(fetcher *Fetcher, store Store, caps Capabilities, opts ...CollectorOption) *Collector {
	c := &Collector{
		fetcher: fetcher,
		store:   store,
		caps:    caps,
		logger:  slog.Default(),
		seen:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.extractor = NewExtractor(WithExtractorLogger(c.logger))
	return c
}

// Collect extracts the assets of page and caches every one not cached
// yet. It returns the number of assets newly discovered by this call.
// Download failures are logged and skipped.
func (c *Collector) Collect(ctx context.Context, page *model.PageResult) (int, error) {
	refs, err := c.extractor.Extract(ctx, page, c.caps)
	if err != nil {
		return 0, err
	}

	found := 0
	for _, ref := range refs {
		if !c.claim(ref.URL) {
			continue
		}
		found++

		if c.cached(ctx, ref.URL) {
			continue
		}

		file, err := c.fetcher.Fetch(ctx, ref.URL)
		if err != nil {
			c.logger.Warn("skipping asset", "url", ref.URL, "page", page.URL, "error", err)
			continue
		}
		if err := c.store.PutFile(ctx, file); err != nil {
			c.logger.Warn("asset cache write failed", "path", file.Path, "error", err)
			continue
		}
		c.logger.Debug("asset cached", "url", ref.URL, "path", file.Path, "bytes", file.Size())
	}
	return found, ctx.Err()
}

// claim marks url as seen and reports whether it was new.
func (c *Collector) claim(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[url]; ok {
		return false
	}
	c.seen[url] = struct{}{}
	return true
}

// cached reports whether the archive entry for url already exists.
func (c *Collector) cached(ctx context.Context, url string) bool {
	path, err := urlnorm.PathFor(url)
	if err != nil {
		return false
	}
	ok, err := c.store.HasFile(ctx, path)
	if err != nil {
		c.logger.Warn("file cache read failed", "path", path, "error", err)
		return false
	}
	return ok
}
