package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/resource"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// Default scheduling parameters.
const (
	DefaultChunkSize    = 10
	DefaultChunkDelay   = 100 * time.Millisecond
	DefaultLoadTimeout  = 30 * time.Second
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = time.Second
)

// Scheduler drives a crawl of one origin. It repeatedly takes a chunk of
// URLs from the frontier, processes the whole chunk concurrently, pauses,
// and starts over until the frontier drains or Stop is called.
type Scheduler struct {
	renderer Renderer
	cache    Cache
	assets   AssetCollector
	reporter Reporter
	timers   *resource.Registry
	logger   *slog.Logger
	filter   func(string) bool

	chunkSize    int
	chunkDelay   time.Duration
	loadTimeout  time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	maxPages     int

	frontier *Frontier
	origin   string
	started  atomic.Bool
	running  atomic.Bool
	stopped  atomic.Bool

	pages     atomic.Int64
	cacheHits atomic.Int64
	assetsHit atomic.Int64

	mu     sync.Mutex
	failed []string
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithChunkSize sets how many URLs are processed concurrently.
func WithChunkSize(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.chunkSize = n
	}
}

// WithChunkDelay sets the pause between chunks.
func WithChunkDelay(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.chunkDelay = d
	}
}

// WithLoadTimeout bounds each render attempt.
func WithLoadTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.loadTimeout = d
	}
}

// WithMaxAttempts sets the number of render attempts per URL.
func WithMaxAttempts(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.maxAttempts = n
	}
}

// WithRetryBackoff sets the linear backoff unit: attempt n waits n*d
// before attempt n+1.
func WithRetryBackoff(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.retryBackoff = d
	}
}

// WithMaxPages stops enqueueing new URLs once n URLs were seen.
// 0 means unlimited.
func WithMaxPages(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.maxPages = n
	}
}

// WithAssetCollector runs c on every freshly rendered page.
func WithAssetCollector(c AssetCollector) SchedulerOption {
	return func(s *Scheduler) {
		s.assets = c
	}
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) SchedulerOption {
	return func(s *Scheduler) {
		s.reporter = r
	}
}

// WithTimers makes every pause use timers tracked by reg.
func WithTimers(reg *resource.Registry) SchedulerOption {
	return func(s *Scheduler) {
		s.timers = reg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithFilter adds a predicate every canonical in-scope URL must pass
// before it is queued (path patterns, robots.txt).
func WithFilter(filter func(string) bool) SchedulerOption {
	return func(s *Scheduler) {
		if filter == nil {
			return
		}
		if prev := s.filter; prev != nil {
			s.filter = func(u string) bool { return prev(u) && filter(u) }
			return
		}
		s.filter = filter
	}
}

// NewScheduler creates a scheduler rendering pages with renderer and
// caching them in cache.
func NewScheduler(renderer Renderer, cache Cache, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		renderer:     renderer,
		cache:        cache,
		reporter:     ReporterFunc(func(string) {}),
		logger:       slog.Default(),
		chunkSize:    DefaultChunkSize,
		chunkDelay:   DefaultChunkDelay,
		loadTimeout:  DefaultLoadTimeout,
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: DefaultRetryBackoff,
		frontier:     NewFrontier(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.timers == nil {
		s.timers = resource.NewRegistry(resource.WithLogger(s.logger))
	}
	if s.chunkSize <= 0 {
		s.chunkSize = DefaultChunkSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}

	return s
}

// Result summarizes a finished crawl.
type Result struct {
	// Origin is the crawled origin.
	Origin string

	// Processed is the number of URLs that reached the processed set.
	Processed int

	// Rendered is the number of pages rendered by the renderer.
	Rendered int

	// CacheHits is the number of pages served from the page cache.
	CacheHits int

	// Assets is the number of assets discovered.
	Assets int

	// Failed lists URLs dropped after exhausting their attempts.
	Failed []string

	// Stopped is true when the loop ended before the frontier drained.
	Stopped bool
}

// Stats is a live snapshot of the crawl.
type Stats struct {
	FrontierStats
	Rendered  int
	CacheHits int
	Assets    int
	Failed    int
}

// Frontier returns the scheduler's frontier.
func (s *Scheduler) Frontier() *Frontier {
	return s.frontier
}

// Running reports whether the loop is active and no stop was requested.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Stop asks the loop to exit after the current chunk. It is safe to call
// at any time and more than once.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	s.running.Store(false)
}

// Stats returns a live snapshot of the crawl.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	failed := len(s.failed)
	s.mu.Unlock()
	return Stats{
		FrontierStats: s.frontier.Stats(),
		Rendered:      int(s.pages.Load()),
		CacheHits:     int(s.cacheHits.Load()),
		Assets:        int(s.assetsHit.Load()),
		Failed:        failed,
	}
}

// Run crawls the origin of seed until the frontier drains, Stop is called
// or ctx is done. Per-URL failures never abort the crawl; Run only fails
// for an invalid seed or a second call.
func (s *Scheduler) Run(ctx context.Context, seed string) (*Result, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	canonical, err := urlnorm.Normalize(seed, seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	origin, err := urlnorm.Origin(canonical)
	if err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	s.origin = origin

	s.running.Store(!s.stopped.Load())
	defer s.running.Store(false)

	s.frontier.Push(canonical)
	s.reporter.Report("Queued: " + canonical)

	for s.running.Load() && !s.frontier.Empty() {
		chunk := s.frontier.NextChunk(s.chunkSize)

		var g errgroup.Group
		g.SetLimit(s.chunkSize)
		for _, url := range chunk {
			g.Go(func() error {
				s.processURL(ctx, url)
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // processURL absorbs its own errors

		if ctx.Err() != nil {
			break
		}

		stats := s.frontier.Stats()
		s.reporter.Report(fmt.Sprintf("Queued: %d, Processed: %d", stats.Queued, stats.Processed))

		if err := s.timers.Sleep(ctx, s.chunkDelay); err != nil {
			break
		}
	}

	return s.result(ctx), nil
}

func (s *Scheduler) result(ctx context.Context) *Result {
	s.mu.Lock()
	failed := append([]string(nil), s.failed...)
	s.mu.Unlock()

	return &Result{
		Origin:    s.origin,
		Processed: s.frontier.Stats().Processed,
		Rendered:  int(s.pages.Load()),
		CacheHits: int(s.cacheHits.Load()),
		Assets:    int(s.assetsHit.Load()),
		Failed:    failed,
		Stopped:   s.stopped.Load() || ctx.Err() != nil || !s.frontier.Empty(),
	}
}

// processURL handles one in-flight URL and always moves it to processed.
func (s *Scheduler) processURL(ctx context.Context, url string) {
	defer s.frontier.MarkProcessed(url)

	cached, err := s.cache.GetPage(ctx, url)
	if err != nil {
		s.logger.Warn("page cache read failed", "url", url, "error", err)
	}
	if cached != nil {
		s.processCached(ctx, cached)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.reporter.Report("Fetching: " + url)

		page, err := s.renderOnce(ctx, url)
		if err == nil {
			s.store(ctx, page)
			s.enqueue(page.Links, url)
			s.collectAssets(ctx, page)
			s.pages.Add(1)
			return
		}

		lastErr = err
		s.logger.Warn("render attempt failed", "url", url, "attempt", attempt, "error", err)
		if attempt == s.maxAttempts {
			break
		}
		if err := s.timers.Sleep(ctx, time.Duration(attempt)*s.retryBackoff); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	s.mu.Lock()
	s.failed = append(s.failed, url)
	s.mu.Unlock()
	s.reporter.Report(fmt.Sprintf("Failed: %s: %v", url, lastErr))
}

// processCached replays a cached page: its HTML goes back into the file
// cache and its links are queued again. The renderer is not called.
func (s *Scheduler) processCached(ctx context.Context, page *model.PageResult) {
	s.logger.Debug("using cached page", "url", page.URL)
	s.cacheHits.Add(1)
	s.putHTML(ctx, page)
	s.enqueue(page.Links, page.URL)
	s.reporter.Report("Using cached data for " + page.URL)
}

// renderOnce performs a single attempt bounded by the load timeout. A
// panicking renderer counts as a failed attempt.
func (s *Scheduler) renderOnce(ctx context.Context, url string) (page *model.PageResult, err error) {
	renderCtx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			page, err = nil, fmt.Errorf("%w: %s: renderer panicked: %v", ErrRenderError, url, r)
		}
	}()

	res, err := s.renderer.Render(renderCtx, url, s.loadTimeout)
	if err != nil {
		if errors.Is(err, ErrPageLoadTimeout) || errors.Is(err, ErrRenderError) {
			return nil, err
		}
		if errors.Is(renderCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPageLoadTimeout, url, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrRenderError, url, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %s: empty result", ErrRenderError, url)
	}

	return &model.PageResult{
		URL:       url,
		HTML:      res.HTML,
		Title:     res.Title,
		Links:     append([]string(nil), res.Links...),
		FetchedAt: time.Now(),
	}, nil
}

func (s *Scheduler) store(ctx context.Context, page *model.PageResult) {
	if err := s.cache.PutPage(ctx, page); err != nil {
		s.logger.Warn("page cache write failed", "url", page.URL, "error", err)
	}
	s.putHTML(ctx, page)
}

func (s *Scheduler) putHTML(ctx context.Context, page *model.PageResult) {
	path, err := urlnorm.PathFor(page.URL)
	if err != nil {
		s.logger.Warn("cannot derive archive path", "url", page.URL, "error", err)
		return
	}
	if err := s.cache.PutFile(ctx, model.NewHTMLFile(path, page.HTML)); err != nil {
		s.logger.Warn("file cache write failed", "path", path, "error", err)
	}
}

func (s *Scheduler) collectAssets(ctx context.Context, page *model.PageResult) {
	if s.assets == nil {
		return
	}
	n, err := s.assets.Collect(ctx, page)
	s.assetsHit.Add(int64(n))
	if err != nil {
		s.logger.Warn("asset extraction failed", "url", page.URL, "error", err)
	}
}

// enqueue normalizes links relative to pageURL and queues the in-scope
// ones not seen before.
func (s *Scheduler) enqueue(links []string, pageURL string) {
	for _, link := range links {
		canonical, err := urlnorm.Normalize(link, pageURL)
		if err != nil {
			s.logger.Debug("dropping link", "link", link, "error", err)
			continue
		}
		if !urlnorm.IsInScope(canonical, s.origin) {
			continue
		}
		if s.filter != nil && !s.filter(canonical) {
			continue
		}
		if s.maxPages > 0 && s.frontier.Stats().Seen() >= s.maxPages {
			return
		}
		if s.frontier.Push(canonical) {
			s.reporter.Report("Queued: " + canonical)
		}
	}
}
