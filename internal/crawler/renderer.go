package crawler

import (
	"context"
	"time"

	"github.com/nao1215/sitesnap/internal/model"
)

// RenderResult is what a renderer returns for one URL.
type RenderResult struct {
	// HTML is the fully rendered document.
	HTML string

	// Title is the document title.
	Title string

	// Links are the outbound links in document order.
	Links []string
}

// Renderer loads a URL, waits for it to finish loading and returns the
// rendered document. timeout bounds the whole call; implementations
// return an error wrapping ErrPageLoadTimeout when it is exceeded and
// ErrRenderError otherwise.
type Renderer interface {
	Render(ctx context.Context, url string, timeout time.Duration) (*RenderResult, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, url string, timeout time.Duration) (*RenderResult, error)

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, url string, timeout time.Duration) (*RenderResult, error) {
	return f(ctx, url, timeout)
}

// Cache is the part of the persistent cache the scheduler needs.
type Cache interface {
	GetPage(ctx context.Context, url string) (*model.PageResult, error)
	PutPage(ctx context.Context, page *model.PageResult) error
	PutFile(ctx context.Context, file model.CachedFile) error
}

// AssetCollector discovers and caches the assets of a rendered page and
// returns how many new assets it found.
type AssetCollector interface {
	Collect(ctx context.Context, page *model.PageResult) (int, error)
}

// Reporter receives human-readable progress messages.
type Reporter interface {
	Report(message string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(message string)

// Report calls f.
func (f ReporterFunc) Report(message string) {
	f(message)
}
