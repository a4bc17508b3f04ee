package database

import (
	"context"

	"github.com/nao1215/sitesnap/internal/model"
)

// Store is the persistent cache shared by the crawler and the archive
// batcher. Implementations must be safe for concurrent use; writes for the
// same key replace the previous value.
type Store interface {
	// PutPage stores or replaces a rendered page.
	PutPage(ctx context.Context, page *model.PageResult) error

	// GetPage returns the page cached for url, or nil when absent.
	GetPage(ctx context.Context, url string) (*model.PageResult, error)

	// ListPages returns every cached page ordered by URL.
	ListPages(ctx context.Context) ([]model.PageResult, error)

	// PutFile stores or replaces an archive entry.
	PutFile(ctx context.Context, file model.CachedFile) error

	// HasFile reports whether an entry exists for path.
	HasFile(ctx context.Context, path string) (bool, error)

	// ListFiles returns every cached file ordered by path.
	ListFiles(ctx context.Context) ([]model.CachedFile, error)

	// Stats returns the number of cached pages and files.
	Stats(ctx context.Context) (Stats, error)

	// Clear drops all cached state.
	Clear(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Stats summarizes the cache contents.
type Stats struct {
	Pages int
	Files int
	Bytes int64
}
