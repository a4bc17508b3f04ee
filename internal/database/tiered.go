package database

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// Tiered keeps every cached page in memory in front of a persistent Store.
// Reads are answered from memory; writes go to the persistent tier first
// so a crash never leaves memory ahead of disk.
type Tiered struct {
	Store

	mu    sync.RWMutex
	pages map[string]model.PageResult
}

var _ Store = (*Tiered)(nil)

// NewTiered wraps store and warms the memory tier with the pages it
// already holds.
func NewTiered(ctx context.Context, store Store) (*Tiered, error) {
	pages, err := store.ListPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to warm page cache: %w", err)
	}

	t := &Tiered{
		Store: store,
		pages: make(map[string]model.PageResult, len(pages)),
	}
	for _, page := range pages {
		t.pages[page.URL] = page
	}
	return t, nil
}

// Len returns the number of pages held in memory.
func (t *Tiered) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pages)
}

// Origins returns the distinct origins of the pages held in memory,
// sorted.
func (t *Tiered) Origins() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]struct{})
	for url := range t.pages {
		origin, err := urlnorm.Origin(url)
		if err != nil {
			continue
		}
		seen[origin] = struct{}{}
	}
	origins := make([]string, 0, len(seen))
	for origin := range seen {
		origins = append(origins, origin)
	}
	slices.Sort(origins)
	return origins
}

// PutPage writes through to the persistent tier, then to memory.
func (t *Tiered) PutPage(ctx context.Context, page *model.PageResult) error {
	if err := t.Store.PutPage(ctx, page); err != nil {
		return err
	}
	t.mu.Lock()
	t.pages[page.URL] = clonePage(*page)
	t.mu.Unlock()
	return nil
}

// GetPage answers from memory and falls back to the persistent tier.
func (t *Tiered) GetPage(ctx context.Context, url string) (*model.PageResult, error) {
	t.mu.RLock()
	page, ok := t.pages[url]
	t.mu.RUnlock()
	if ok {
		cp := clonePage(page)
		return &cp, nil
	}

	stored, err := t.Store.GetPage(ctx, url)
	if err != nil || stored == nil {
		return stored, err
	}
	t.mu.Lock()
	t.pages[url] = clonePage(*stored)
	t.mu.Unlock()
	return stored, nil
}

// Clear drops both tiers.
func (t *Tiered) Clear(ctx context.Context) error {
	if err := t.Store.Clear(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	t.pages = make(map[string]model.PageResult)
	t.mu.Unlock()
	return nil
}

func clonePage(p model.PageResult) model.PageResult {
	p.Links = append([]string(nil), p.Links...)
	return p
}
