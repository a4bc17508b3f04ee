package assets

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/netclient"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// Getter fetches a URL. *netclient.Client implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*netclient.Response, error)
}

// Fetcher downloads assets at a bounded request rate.
type Fetcher struct {
	getter  Getter
	limiter *rate.Limiter
}

// NewFetcher creates a fetcher allowing perSecond requests per second.
// A non-positive rate disables limiting.
func NewFetcher(getter Getter, perSecond float64) *Fetcher {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(math.Ceil(perSecond)))
	}
	return &Fetcher{
		getter:  getter,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Fetch downloads rawURL and returns it as a cache entry.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (model.CachedFile, error) {
	path, err := urlnorm.PathFor(rawURL)
	if err != nil {
		return model.CachedFile{}, fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, err)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return model.CachedFile{}, fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, err)
	}

	resp, err := f.getter.Get(ctx, rawURL)
	if err != nil {
		return model.CachedFile{}, fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, err)
	}
	if !resp.OK() {
		return model.CachedFile{}, fmt.Errorf("%w: %s: status %d", ErrFetchFailed, rawURL, resp.StatusCode)
	}

	return model.NewCachedFile(path, resp.Body, resp.ContentType), nil
}
