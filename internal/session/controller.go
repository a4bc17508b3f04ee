package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/sitesnap/internal/archive"
	"github.com/nao1215/sitesnap/internal/assets"
	"github.com/nao1215/sitesnap/internal/crawler"
	"github.com/nao1215/sitesnap/internal/database"
	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/pipeline"
	"github.com/nao1215/sitesnap/internal/resource"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// RendererFactory creates the renderer of one session. Renderers that
// open contexts (browser tabs) must track them in reg so that they are
// released when the session ends. A renderer implementing io.Closer is
// closed at the end of the session.
type RendererFactory func(reg *resource.Registry) (crawler.Renderer, error)

// CollectorFactory creates the asset collector of one session.
type CollectorFactory func(store assets.Store, caps assets.Capabilities) crawler.AssetCollector

// Settings are the tunables of a session.
type Settings struct {
	ChunkSize             int
	ChunkDelay            time.Duration
	LoadTimeout           time.Duration
	MaxAttempts           int
	RetryBackoff          time.Duration
	MaxPages              int
	BatchSize             int
	MaxConcurrentArchives int

	// Premium enables asset heuristics and maximum archive compression.
	Premium bool

	// Filter, when set, must accept a URL for it to be crawled.
	Filter func(url string) bool
}

// Controller runs one crawl session at a time.
type Controller struct {
	store        database.Store
	newRenderer  RendererFactory
	newCollector CollectorFactory
	sink         archive.Sink
	settings     Settings
	heuristics   assets.Heuristics
	logger       *slog.Logger
	observers    []Observer
	dispatch     *dispatcher
	now          func() time.Time

	mu       sync.Mutex
	session  model.Session
	active   bool
	stopping bool
	sched    *crawler.Scheduler
	done     chan struct{}
	summary  *model.SessionSummary
	runErr   error

	histMu  sync.Mutex
	history []model.ProgressEvent
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithObserver adds a progress observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, o)
	}
}

// WithCollector enables asset collection.
func WithCollector(f CollectorFactory) Option {
	return func(c *Controller) {
		c.newCollector = f
	}
}

// WithHeuristics replaces the premium asset heuristics.
func WithHeuristics(h assets.Heuristics) Option {
	return func(c *Controller) {
		c.heuristics = h
	}
}

// NewController creates a controller caching into store and delivering
// archives to sink.
func NewController(store database.Store, renderers RendererFactory, sink archive.Sink, settings Settings, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		newRenderer: renderers,
		sink:        sink,
		settings:    settings,
		heuristics:  assets.AdvancedSelectors{},
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dispatch = newDispatcher(c.observers, c.logger)
	return c
}

// Start begins a session for seed and returns once it runs in the
// background. Use Wait to block until it ends.
func (c *Controller) Start(ctx context.Context, seed string) error {
	canonical, err := urlnorm.Normalize(seed, seed)
	if err != nil {
		return err
	}
	origin, err := urlnorm.Origin(canonical)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		c.emit("Already running")
		return ErrAlreadyRunning
	}
	c.active = true
	c.stopping = false
	c.summary = nil
	c.runErr = nil
	c.done = make(chan struct{})
	c.session = model.Session{
		ID:         uuid.NewString(),
		BaseOrigin: origin,
		SeedURL:    canonical,
		Running:    true,
		StartedAt:  c.now(),
		Premium:    c.settings.Premium,
		Status:     model.StatusRunning,
	}
	c.mu.Unlock()

	logger := c.logger.With("session", c.session.ID, "origin", origin)

	cache, err := database.NewTiered(ctx, c.store)
	if err != nil {
		err = fmt.Errorf("failed to initialize cache: %w", err)
		c.finish(model.StatusFailed, err, nil, nil)
		return err
	}

	if foreign := foreignOrigins(cache, origin); len(foreign) > 0 {
		err = fmt.Errorf("%w: %s (export or clear it first)", ErrForeignCache, strings.Join(foreign, ", "))
		c.finish(model.StatusFailed, err, nil, nil)
		return err
	}

	reg := resource.NewRegistry(resource.WithLogger(logger))
	renderer, err := c.newRenderer(reg)
	if err != nil {
		err = fmt.Errorf("failed to create renderer: %w", err)
		c.finish(model.StatusFailed, err, nil, nil)
		return err
	}

	sched := c.newScheduler(renderer, cache, reg, logger)
	p := c.newPipeline(cache, sched, logger)

	c.mu.Lock()
	c.sched = sched
	stopping := c.stopping
	c.mu.Unlock()
	if stopping {
		sched.Stop()
	}

	c.emit("Started: " + canonical)
	logger.Info("session started", "seed", canonical, "premium", c.settings.Premium)

	go c.run(ctx, p, canonical, reg, renderer, logger)
	return nil
}

func (c *Controller) newScheduler(renderer crawler.Renderer, cache *database.Tiered, reg *resource.Registry, logger *slog.Logger) *crawler.Scheduler {
	opts := []crawler.SchedulerOption{
		crawler.WithChunkSize(c.settings.ChunkSize),
		crawler.WithChunkDelay(c.settings.ChunkDelay),
		crawler.WithMaxAttempts(c.settings.MaxAttempts),
		crawler.WithRetryBackoff(c.settings.RetryBackoff),
		crawler.WithMaxPages(c.settings.MaxPages),
		crawler.WithTimers(reg),
		crawler.WithLogger(logger),
		crawler.WithReporter(crawler.ReporterFunc(c.emit)),
	}
	if c.settings.LoadTimeout > 0 {
		opts = append(opts, crawler.WithLoadTimeout(c.settings.LoadTimeout))
	}
	if c.settings.Filter != nil {
		opts = append(opts, crawler.WithFilter(c.settings.Filter))
	}
	if c.newCollector != nil {
		caps := assets.Capabilities{PremiumEnabled: c.settings.Premium, Heuristics: c.heuristics}
		opts = append(opts, crawler.WithAssetCollector(c.newCollector(cache, caps)))
	}
	return crawler.NewScheduler(renderer, cache, opts...)
}

func (c *Controller) newPipeline(cache *database.Tiered, sched *crawler.Scheduler, logger *slog.Logger) *pipeline.Pipeline {
	level := archive.FastCompression
	if c.settings.Premium {
		level = archive.BestCompression
	}
	batcher := archive.NewBatcher(c.sink,
		archive.WithBatchSize(c.settings.BatchSize),
		archive.WithMaxConcurrent(c.settings.MaxConcurrentArchives),
		archive.WithCompressionLevel(level),
		archive.WithLogger(logger),
		archive.WithOnDelivered(func(info model.ArchiveInfo) {
			c.emit(fmt.Sprintf("Delivered %s (%d files)", info.Name, info.Files))
		}),
	)

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithBeforeStep(c.beforeStep),
	)
	p.AddSteps(
		pipeline.NewCrawlStep(sched),
		pipeline.NewSitemapStep(cache, logger),
		pipeline.NewExportStep(batcher, cache),
	)
	return p
}

// beforeStep refuses every phase after the crawl once a stop was
// requested, and moves the session to draining otherwise.
func (c *Controller) beforeStep(_ context.Context, name string) error {
	if name == pipeline.StepCrawl {
		return nil
	}
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return pipeline.ErrStopped
	}
	c.session.Status = model.StatusDraining
	c.mu.Unlock()

	if name == pipeline.StepExport {
		c.emit("Crawl finished, exporting archives")
	}
	return nil
}

func (c *Controller) run(ctx context.Context, p *pipeline.Pipeline, seed string, reg *resource.Registry, renderer crawler.Renderer, logger *slog.Logger) {
	state := &pipeline.State{Seed: seed}
	var err error

	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}

		if releaseErr := reg.ReleaseAll(context.WithoutCancel(ctx)); releaseErr != nil {
			logger.Warn("failed to release renderer resources", "error", releaseErr)
		}
		if closer, ok := renderer.(io.Closer); ok {
			if closeErr := closer.Close(); closeErr != nil {
				logger.Warn("failed to close renderer", "error", closeErr)
			}
		}

		status := model.StatusCompleted
		switch {
		case err == nil:
		case errors.Is(err, pipeline.ErrStopped), errors.Is(err, context.Canceled):
			status = model.StatusStopped
			err = nil
		default:
			status = model.StatusFailed
		}

		c.finish(status, err, state.Crawl, state.Archives)
		logger.Info("session ended", "status", status.String())
	}()

	err = p.Execute(ctx, state)
}

// foreignOrigins lists the origins other than origin that have pages in
// the cache, sorted.
func foreignOrigins(cache *database.Tiered, origin string) []string {
	var foreign []string
	for _, o := range cache.Origins() {
		if o != origin {
			foreign = append(foreign, o)
		}
	}
	return foreign
}

// finish moves the session to a terminal status, builds its summary and
// wakes up waiters.
func (c *Controller) finish(status model.Status, err error, crawl *crawler.Result, archives []model.ArchiveInfo) {
	c.mu.Lock()
	c.session.Status = status
	c.session.Running = false
	c.session.EndedAt = c.now()
	if err != nil {
		c.session.LastError = err.Error()
	}
	summary := &model.SessionSummary{
		Session:  c.session,
		Archives: archives,
		Duration: c.session.EndedAt.Sub(c.session.StartedAt),
	}
	if crawl != nil {
		summary.Pages = crawl.Processed
		summary.CachedPages = crawl.Rendered + crawl.CacheHits
		summary.Assets = crawl.Assets
		summary.Failed = crawl.Failed
	}
	c.summary = summary
	c.runErr = err
	c.active = false
	c.sched = nil
	done := c.done
	c.mu.Unlock()

	switch status {
	case model.StatusCompleted:
		c.emit(fmt.Sprintf("Completed: %d pages, %d archives", summary.Pages, len(archives)))
	case model.StatusStopped:
		c.emit("Stopped")
	default:
		c.emit("Failed: " + summary.Session.LastError)
	}
	close(done)
}

// Stop asks the running session to finish its current chunk and end
// without exporting. Calling it again while stopping is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		c.emit("Nothing to stop")
		return ErrNothingToStop
	}
	if c.stopping {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	c.session.Running = false
	sched := c.sched
	c.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	c.emit("Stopping after the current chunk")
	return nil
}

// Status returns a snapshot of the current or last session.
func (c *Controller) Status() model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Wait blocks until the current or last session ended and returns its
// summary. The error is the one that failed the session, if any.
func (c *Controller) Wait(ctx context.Context) (*model.SessionSummary, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil, ErrNoSession
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary, c.runErr
}

// History returns every event emitted so far, oldest first.
func (c *Controller) History() []model.ProgressEvent {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	return append([]model.ProgressEvent(nil), c.history...)
}

// Close waits for queued events to reach the observers. The controller
// must not be used afterwards.
func (c *Controller) Close() {
	c.dispatch.close()
}

// emit records and publishes a progress event. It must not be called
// with c.mu held.
func (c *Controller) emit(message string) {
	c.mu.Lock()
	event := model.ProgressEvent{
		Timestamp: c.now(),
		Message:   message,
		Status:    c.session.Status,
	}
	sched := c.sched
	c.mu.Unlock()

	if sched != nil {
		stats := sched.Stats()
		event.Queued = stats.Queued
		event.Processed = stats.Processed
		event.AssetsFound = stats.Assets
	}

	c.histMu.Lock()
	c.history = append(c.history, event)
	c.histMu.Unlock()

	c.dispatch.publish(event)
}
