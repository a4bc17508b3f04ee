package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/nao1215/sitesnap/internal/crawler"
	"github.com/nao1215/sitesnap/internal/resource"
)

// linksScript collects the resolved href of every link on the page.
const linksScript = `Array.from(document.querySelectorAll('a[href], area[href]'), a => a.href)`

// ChromeOptions configures a ChromeRenderer.
type ChromeOptions struct {
	// ExecPath is the Chrome binary. Empty means auto-detect.
	ExecPath string

	// Headful shows the browser window.
	Headful bool

	// UserAgent overrides the browser user agent.
	UserAgent string

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// SettleDelay is waited after readyState reaches "complete" so late
	// scripts can finish mutating the DOM.
	SettleDelay time.Duration
}

// ChromeRenderer renders pages in tabs of one headless Chrome instance.
// Every tab is registered with a resource.Registry and closed when the
// render returns or the registry is released.
type ChromeRenderer struct {
	opts     ChromeOptions
	registry *resource.Registry
	logger   *slog.Logger

	startOnce   sync.Once
	startErr    error
	browserCtx  context.Context
	allocCancel context.CancelFunc
	browserStop context.CancelFunc
}

// ChromeOption configures a ChromeRenderer.
type ChromeOption func(*ChromeRenderer)

// WithChromeLogger sets the logger.
func WithChromeLogger(logger *slog.Logger) ChromeOption {
	return func(r *ChromeRenderer) {
		r.logger = logger
	}
}

// WithRegistry tracks tabs in reg.
func WithRegistry(reg *resource.Registry) ChromeOption {
	return func(r *ChromeRenderer) {
		r.registry = reg
	}
}

// NewChromeRenderer creates a renderer. The browser is launched on the
// first Render call.
func NewChromeRenderer(opts ChromeOptions, options ...ChromeOption) *ChromeRenderer {
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	r := &ChromeRenderer{opts: opts, logger: slog.Default()}
	for _, opt := range options {
		opt(r)
	}
	if r.registry == nil {
		r.registry = resource.NewRegistry(resource.WithLogger(r.logger))
	}
	return r
}

func (r *ChromeRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", !r.opts.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	}
	if r.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.opts.ExecPath))
	}
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if r.opts.ProxyAddress != "" {
		opts = append(opts, chromedp.ProxyServer("socks5://"+r.opts.ProxyAddress))
	}
	return opts
}

// start launches the browser once.
func (r *ChromeRenderer) start() error {
	r.startOnce.Do(func() {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), r.allocatorOptions()...)
		browserCtx, browserStop := chromedp.NewContext(allocCtx)
		// An empty Run starts the browser process.
		if err := chromedp.Run(browserCtx); err != nil {
			browserStop()
			allocCancel()
			r.startErr = fmt.Errorf("failed to start chrome: %w", err)
			return
		}
		r.browserCtx = browserCtx
		r.allocCancel = allocCancel
		r.browserStop = browserStop
	})
	return r.startErr
}

// Render implements crawler.Renderer.
func (r *ChromeRenderer) Render(ctx context.Context, url string, timeout time.Duration) (*crawler.RenderResult, error) {
	if err := r.start(); err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrRenderError, err)
	}

	tabCtx, tabCancel := chromedp.NewContext(r.browserCtx)
	closeTab := r.registry.TrackTab(url, func() error {
		err := chromedp.Cancel(tabCtx)
		tabCancel()
		return err
	})
	defer func() {
		if err := closeTab(); err != nil {
			r.logger.Warn("failed to close tab", "url", url, "error", err)
		}
	}()

	runCtx := tabCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(tabCtx, timeout)
		defer cancel()
	}
	stopOnParent := context.AfterFunc(ctx, tabCancel)
	defer stopOnParent()

	start := time.Now()
	var (
		doc   string
		title string
		links []string
	)
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		waitForDocumentReady(),
	}
	if r.opts.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(r.opts.SettleDelay))
	}
	actions = append(actions,
		chromedp.OuterHTML("html", &doc, chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.Evaluate(linksScript, &links),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s after %s", crawler.ErrPageLoadTimeout, url, timeout)
		}
		return nil, fmt.Errorf("%w: %s: %w", crawler.ErrRenderError, url, err)
	}

	r.logger.Debug("chrome render complete",
		"url", url,
		"latency_ms", time.Since(start).Milliseconds(),
		"html_bytes", len(doc),
		"links", len(links),
	)

	return &crawler.RenderResult{
		HTML:  "<!DOCTYPE html>\n" + doc,
		Title: strings.TrimSpace(title),
		Links: dedupe(links),
	}, nil
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() error {
	if r.browserStop == nil {
		return nil
	}
	err := chromedp.Cancel(r.browserCtx)
	r.browserStop()
	r.allocCancel()
	r.browserStop = nil
	return err
}

// waitForDocumentReady polls document.readyState until it is "complete".
func waitForDocumentReady() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var readyState string
			if err := chromedp.Evaluate(`document.readyState`, &readyState).Do(ctx); err != nil {
				return err
			}
			if readyState == "complete" {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// dedupe drops empty and repeated links keeping document order.
func dedupe(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
