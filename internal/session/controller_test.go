package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitesnap/internal/archive"
	"github.com/nao1215/sitesnap/internal/crawler"
	"github.com/nao1215/sitesnap/internal/database"
	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/resource"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

func openStore(t *testing.T) *database.CacheDB {
	t.Helper()
	store, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSettings() Settings {
	return Settings{
		ChunkSize:             2,
		ChunkDelay:            time.Millisecond,
		LoadTimeout:           time.Second,
		MaxAttempts:           1,
		RetryBackoff:          time.Millisecond,
		BatchSize:             250,
		MaxConcurrentArchives: 3,
	}
}

func waitSession(t *testing.T, c *Controller) (*model.SessionSummary, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	summary, err := c.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("session did not end in time")
	}
	return summary, err
}

// staticSite renders a fixed two-page site.
func staticSite(*resource.Registry) (crawler.Renderer, error) {
	return crawler.RendererFunc(func(_ context.Context, url string, _ time.Duration) (*crawler.RenderResult, error) {
		switch url {
		case "https://example.com":
			return &crawler.RenderResult{
				HTML:  `<html><head><title>Home</title></head><body><a href="/about">About</a></body></html>`,
				Title: "Home",
				Links: []string{"https://example.com/about"},
			}, nil
		case "https://example.com/about":
			return &crawler.RenderResult{HTML: "<html><title>About</title></html>", Title: "About"}, nil
		}
		return nil, fmt.Errorf("%w: %s", crawler.ErrRenderError, url)
	}), nil
}

func hasMessage(events []model.ProgressEvent, prefix string) bool {
	for _, e := range events {
		if strings.HasPrefix(e.Message, prefix) {
			return true
		}
	}
	return false
}

func TestControllerCompleted(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	out := t.TempDir()

	var mu sync.Mutex
	var observed []model.ProgressEvent
	c := NewController(store, staticSite, archive.NewDirSink(out), testSettings(),
		WithObserver(ObserverFunc(func(model.ProgressEvent) { panic("broken observer") })),
		WithObserver(ObserverFunc(func(e model.ProgressEvent) {
			mu.Lock()
			observed = append(observed, e)
			mu.Unlock()
		})),
	)

	if err := c.Start(context.Background(), "https://example.com/"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	summary, err := waitSession(t, c)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	c.Close()

	if summary.Session.Status != model.StatusCompleted {
		t.Errorf("Status = %v, want completed", summary.Session.Status)
	}
	if summary.Pages != 2 {
		t.Errorf("Pages = %d, want 2", summary.Pages)
	}
	if len(summary.Archives) != 1 {
		t.Fatalf("Archives = %d, want 1", len(summary.Archives))
	}
	if _, err := os.Stat(filepath.Join(out, "site-archive-part1.zip")); err != nil {
		t.Errorf("archive not delivered: %v", err)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Pages != 0 || stats.Files != 0 {
		t.Errorf("cache not cleared: %+v", stats)
	}

	status := c.Status()
	if status.Running {
		t.Error("Running should be false after completion")
	}
	if status.ID == "" {
		t.Error("session has no ID")
	}

	history := c.History()
	for _, prefix := range []string{"Started", "Fetching: https://example.com/about", "Crawl finished", "Delivered site-archive-part1.zip", "Completed"} {
		if !hasMessage(history, prefix) {
			t.Errorf("history lacks %q", prefix)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if !hasMessage(observed, "Completed") {
		t.Error("observer did not receive the final event")
	}
}

func TestControllerAlreadyRunning(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	renderers := func(*resource.Registry) (crawler.Renderer, error) {
		return crawler.RendererFunc(func(ctx context.Context, _ string, _ time.Duration) (*crawler.RenderResult, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return &crawler.RenderResult{HTML: "<html></html>"}, nil
		}), nil
	}
	c := NewController(openStore(t), renderers, archive.NewDirSink(t.TempDir()), testSettings())
	defer c.Close()

	if err := c.Start(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Start(context.Background(), "https://example.org"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if got := c.Status().BaseOrigin; got != "https://example.com" {
		t.Errorf("BaseOrigin = %q, the first session must keep running", got)
	}

	close(release)
	if _, err := waitSession(t, c); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	// A new session can start once the previous one ended.
	if err := c.Start(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Start() after completion error = %v", err)
	}
	if _, err := waitSession(t, c); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestControllerStopWhenIdle(t *testing.T) {
	t.Parallel()

	c := NewController(openStore(t), staticSite, archive.NewDirSink(t.TempDir()), testSettings())
	defer c.Close()

	if err := c.Stop(); !errors.Is(err, ErrNothingToStop) {
		t.Errorf("Stop() error = %v, want ErrNothingToStop", err)
	}
	if !hasMessage(c.History(), "Nothing to stop") {
		t.Error("history lacks the nothing to stop report")
	}
	if _, err := c.Wait(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Wait() error = %v, want ErrNoSession", err)
	}
	if got := c.Status().Status; got != model.StatusIdle {
		t.Errorf("Status = %v, want idle", got)
	}
}

func TestControllerStopMidCrawl(t *testing.T) {
	t.Parallel()

	var (
		reg      *resource.Registry
		tracked  atomic.Int32
		released atomic.Int32
		once     sync.Once
	)
	started := make(chan struct{})
	proceed := make(chan struct{})

	renderers := func(r *resource.Registry) (crawler.Renderer, error) {
		reg = r
		return crawler.RendererFunc(func(_ context.Context, url string, _ time.Duration) (*crawler.RenderResult, error) {
			// Tabs are left open so that only the session cleanup closes them.
			tracked.Add(1)
			r.TrackTab(url, func() error {
				released.Add(1)
				return nil
			})
			once.Do(func() { close(started) })
			<-proceed

			links := make([]string, 0, 5)
			for i := range 5 {
				links = append(links, fmt.Sprintf("%s/p%d", url, i))
			}
			return &crawler.RenderResult{HTML: "<html></html>", Links: links}, nil
		}), nil
	}

	out := t.TempDir()
	c := NewController(openStore(t), renderers, archive.NewDirSink(out), testSettings())
	defer c.Close()

	if err := c.Start(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop() error = %v, want nil", err)
	}
	close(proceed)

	summary, err := waitSession(t, c)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if summary.Session.Status != model.StatusStopped {
		t.Errorf("Status = %v, want stopped", summary.Session.Status)
	}
	if summary.Pages != 1 {
		t.Errorf("Pages = %d, want 1 (only the current chunk)", summary.Pages)
	}
	if len(summary.Archives) != 0 {
		t.Errorf("stopped session exported %d archives", len(summary.Archives))
	}
	if reg.OpenTabs() != 0 {
		t.Errorf("OpenTabs() = %d, want 0", reg.OpenTabs())
	}
	if released.Load() != tracked.Load() {
		t.Errorf("released %d of %d tabs", released.Load(), tracked.Load())
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("output dir has %d entries, want none", len(entries))
	}
	if !hasMessage(c.History(), "Stopped") {
		t.Error("history lacks the stopped report")
	}
}

func TestControllerFailed(t *testing.T) {
	t.Parallel()

	t.Run("delivery failure keeps the cache", func(t *testing.T) {
		t.Parallel()

		store := openStore(t)
		sink := archive.SinkFunc(func(context.Context, []byte, string) error {
			return errors.New("disk full")
		})
		c := NewController(store, staticSite, sink, testSettings())
		defer c.Close()

		if err := c.Start(context.Background(), "https://example.com"); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		summary, err := waitSession(t, c)
		if !errors.Is(err, archive.ErrDeliveryError) {
			t.Fatalf("Wait() error = %v, want ErrDeliveryError", err)
		}
		if summary.Session.Status != model.StatusFailed {
			t.Errorf("Status = %v, want failed", summary.Session.Status)
		}
		if !strings.Contains(summary.Session.LastError, "disk full") {
			t.Errorf("LastError = %q", summary.Session.LastError)
		}
		stats, err := store.Stats(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if stats.Files == 0 {
			t.Error("cache was cleared after a failed delivery")
		}
	})

	t.Run("renderer creation failure", func(t *testing.T) {
		t.Parallel()

		renderers := func(*resource.Registry) (crawler.Renderer, error) {
			return nil, errors.New("chrome not found")
		}
		c := NewController(openStore(t), renderers, archive.NewDirSink(t.TempDir()), testSettings())
		defer c.Close()

		if err := c.Start(context.Background(), "https://example.com"); err == nil {
			t.Fatal("Start() should fail")
		}
		status := c.Status()
		if status.Status != model.StatusFailed {
			t.Errorf("Status = %v, want failed", status.Status)
		}
		if !strings.Contains(status.LastError, "chrome not found") {
			t.Errorf("LastError = %q", status.LastError)
		}
		if _, err := waitSession(t, c); err == nil {
			t.Error("Wait() should return the failure")
		}
	})

	t.Run("invalid seed", func(t *testing.T) {
		t.Parallel()

		c := NewController(openStore(t), staticSite, archive.NewDirSink(t.TempDir()), testSettings())
		defer c.Close()

		if err := c.Start(context.Background(), "mailto:someone@example.com"); !errors.Is(err, urlnorm.ErrInvalidURL) {
			t.Errorf("Start() error = %v, want ErrInvalidURL", err)
		}
		if got := c.Status().Status; got != model.StatusIdle {
			t.Errorf("Status = %v, want idle", got)
		}
	})
}

func TestControllerCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	renderers := func(*resource.Registry) (crawler.Renderer, error) {
		return crawler.RendererFunc(func(ctx context.Context, url string, _ time.Duration) (*crawler.RenderResult, error) {
			cancel()
			<-ctx.Done()
			return nil, fmt.Errorf("%w: %v", crawler.ErrRenderError, ctx.Err())
		}), nil
	}
	c := NewController(openStore(t), renderers, archive.NewDirSink(t.TempDir()), testSettings())
	defer c.Close()

	if err := c.Start(ctx, "https://example.com"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	summary, err := waitSession(t, c)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if summary.Session.Status != model.StatusStopped {
		t.Errorf("Status = %v, want stopped", summary.Session.Status)
	}
}

func TestControllerStopDuringStartup(t *testing.T) {
	t.Parallel()

	var (
		c       *Controller
		renders atomic.Int32
		stopErr error
	)
	renderers := func(*resource.Registry) (crawler.Renderer, error) {
		stopErr = c.Stop()
		return crawler.RendererFunc(func(_ context.Context, url string, _ time.Duration) (*crawler.RenderResult, error) {
			n := renders.Add(1)
			if n > 30 {
				return &crawler.RenderResult{HTML: "<html></html>"}, nil
			}
			next := fmt.Sprintf("https://example.com/p%d", n)
			return &crawler.RenderResult{HTML: "<html></html>", Links: []string{next}}, nil
		}), nil
	}
	c = NewController(openStore(t), renderers, archive.NewDirSink(t.TempDir()), testSettings())
	defer c.Close()

	if err := c.Start(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	summary, err := waitSession(t, c)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if stopErr != nil {
		t.Errorf("Stop() during startup error = %v, want nil", stopErr)
	}
	if summary.Session.Status != model.StatusStopped {
		t.Errorf("Status = %v, want stopped", summary.Session.Status)
	}
	if n := renders.Load(); n != 0 {
		t.Errorf("stop came before the crawl, yet %d pages were rendered", n)
	}
	if summary.Pages != 0 || len(summary.Archives) != 0 {
		t.Errorf("unexpected summary: pages=%d archives=%d", summary.Pages, len(summary.Archives))
	}
}

func TestControllerForeignCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)
	if err := store.PutPage(ctx, &model.PageResult{URL: "https://old.example.org/docs", HTML: "<html>old</html>"}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutFile(ctx, model.NewHTMLFile("docs/index.html", "<html>old</html>")); err != nil {
		t.Fatal(err)
	}

	var renders atomic.Int32
	renderers := func(reg *resource.Registry) (crawler.Renderer, error) {
		site, err := staticSite(reg)
		if err != nil {
			return nil, err
		}
		return crawler.RendererFunc(func(ctx context.Context, url string, timeout time.Duration) (*crawler.RenderResult, error) {
			renders.Add(1)
			return site.Render(ctx, url, timeout)
		}), nil
	}
	out := t.TempDir()
	c := NewController(store, renderers, archive.NewDirSink(out), testSettings())
	defer c.Close()

	err := c.Start(ctx, "https://example.com")
	if !errors.Is(err, ErrForeignCache) {
		t.Fatalf("Start() error = %v, want ErrForeignCache", err)
	}
	if !strings.Contains(err.Error(), "https://old.example.org") {
		t.Errorf("error does not name the cached origin: %v", err)
	}
	if got := c.Status().Status; got != model.StatusFailed {
		t.Errorf("Status = %v, want failed", got)
	}
	if renders.Load() != 0 {
		t.Error("the renderer ran against a foreign cache")
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pages != 1 || stats.Files != 1 {
		t.Errorf("the other origin's cache was modified: %+v", stats)
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("output dir has %d entries, want none", len(entries))
	}
}

// countingSite serves a small link graph and counts renders per URL.
type countingSite struct {
	mu    sync.Mutex
	calls map[string]int
	gate  chan struct{}
}

func (s *countingSite) factory(*resource.Registry) (crawler.Renderer, error) {
	return crawler.RendererFunc(func(ctx context.Context, url string, _ time.Duration) (*crawler.RenderResult, error) {
		s.mu.Lock()
		s.calls[url]++
		s.mu.Unlock()
		if s.gate != nil {
			select {
			case <-s.gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		links := map[string][]string{
			"https://example.com":   {"https://example.com/a", "https://example.com/b"},
			"https://example.com/a": {"https://example.com/c"},
		}[url]
		return &crawler.RenderResult{HTML: "<html>" + url + "</html>", Title: url, Links: links}, nil
	}), nil
}

func (s *countingSite) count(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func TestControllerResumeFromDisk(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	out := t.TempDir()

	// First process: stopped while the seed is being rendered.
	first, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	gate := make(chan struct{})
	site1 := &countingSite{calls: make(map[string]int), gate: gate}
	c1 := NewController(first, site1.factory, archive.NewDirSink(out), testSettings())
	if err := c1.Start(ctx, "https://example.com"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for site1.count("https://example.com") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("the seed was never rendered")
		}
		time.Sleep(time.Millisecond)
	}
	if err := c1.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	close(gate)
	summary, err := waitSession(t, c1)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	c1.Close()
	if summary.Session.Status != model.StatusStopped || summary.Pages != 1 {
		t.Fatalf("first session: status=%v pages=%d", summary.Session.Status, summary.Pages)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	// Second process: a new store on the same directory.
	second, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close()

	site2 := &countingSite{calls: make(map[string]int)}
	c2 := NewController(second, site2.factory, archive.NewDirSink(out), testSettings())
	defer c2.Close()
	if err := c2.Start(ctx, "https://example.com"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	summary, err = waitSession(t, c2)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if n := site2.count("https://example.com"); n != 0 {
		t.Errorf("cached seed rendered %d times after restart", n)
	}
	for _, u := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		if n := site2.count(u); n != 1 {
			t.Errorf("%s rendered %d times, want 1", u, n)
		}
	}
	if summary.Session.Status != model.StatusCompleted {
		t.Errorf("Status = %v, want completed", summary.Session.Status)
	}
	if summary.Pages != 4 || summary.CachedPages != 4 {
		t.Errorf("Pages = %d, CachedPages = %d, want 4 and 4", summary.Pages, summary.CachedPages)
	}
	if !hasMessage(c2.History(), "Using cached data for https://example.com") {
		t.Error("history lacks the cache hit report")
	}
}

// brokenListing panics when the export phase lists the cached files.
type brokenListing struct {
	*database.CacheDB
}

func (brokenListing) ListFiles(context.Context) ([]model.CachedFile, error) {
	panic("corrupt index")
}

type closingRenderer struct {
	crawler.Renderer
	closed atomic.Bool
}

func (r *closingRenderer) Close() error {
	r.closed.Store(true)
	return nil
}

func TestControllerPanicReleasesResources(t *testing.T) {
	t.Parallel()

	var (
		reg      *resource.Registry
		renderer *closingRenderer
	)
	renderers := func(r *resource.Registry) (crawler.Renderer, error) {
		reg = r
		site, err := staticSite(r)
		if err != nil {
			return nil, err
		}
		renderer = &closingRenderer{Renderer: crawler.RendererFunc(func(ctx context.Context, url string, timeout time.Duration) (*crawler.RenderResult, error) {
			r.TrackTab(url, func() error { return nil })
			return site.Render(ctx, url, timeout)
		})}
		return renderer, nil
	}
	c := NewController(brokenListing{openStore(t)}, renderers, archive.NewDirSink(t.TempDir()), testSettings())
	defer c.Close()

	if err := c.Start(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	summary, err := waitSession(t, c)
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("Wait() error = %v, want ErrPanic", err)
	}
	if summary.Session.Status != model.StatusFailed {
		t.Errorf("Status = %v, want failed", summary.Session.Status)
	}
	if !strings.Contains(summary.Session.LastError, "corrupt index") {
		t.Errorf("LastError = %q", summary.Session.LastError)
	}
	if reg.OpenTabs() != 0 {
		t.Errorf("OpenTabs() = %d, want 0", reg.OpenTabs())
	}
	if !renderer.closed.Load() {
		t.Error("renderer was not closed")
	}
	if summary.Pages != 2 {
		t.Errorf("Pages = %d, want 2", summary.Pages)
	}
}
