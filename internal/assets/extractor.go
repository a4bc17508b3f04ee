package assets

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// selectorTable maps CSS selectors to the attribute holding the asset URL.
var selectorTable = []struct {
	selector string
	attr     string
}{
	{"img[src]", "src"},
	{"script[src]", "src"},
	{`link[rel~="stylesheet"][href]`, "href"},
	{`link[rel~="icon"][href]`, "href"},
	{"video[src]", "src"},
	{"video[poster]", "poster"},
	{"audio[src]", "src"},
	{"source[src]", "src"},
	{"iframe[src]", "src"},
}

// Extractor finds the same-origin assets of a page.
type Extractor struct {
	logger *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithExtractorLogger sets the logger.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor creates an extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the canonical URLs of the page's same-origin assets in
// document order without duplicates. Heuristic results are merged when
// caps enables them; a failing heuristic is logged and skipped.
func (e *Extractor) Extract(ctx context.Context, page *model.PageResult, caps Capabilities) ([]model.AssetRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page.URL, err)
	}

	base := page.URL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := resolveBase(page.URL, href); err == nil {
			base = resolved
		}
	}

	var raw []string
	for _, entry := range selectorTable {
		doc.Find(entry.selector).Each(func(_ int, s *goquery.Selection) {
			raw = append(raw, s.AttrOr(entry.attr, ""))
		})
	}
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		raw = append(raw, cssURLs(s.AttrOr("style", ""))...)
	})

	if caps.PremiumEnabled && caps.Heuristics != nil {
		raw = append(raw, e.heuristics(doc, caps.Heuristics, page.URL)...)
	}

	seen := make(map[string]struct{}, len(raw))
	refs := make([]model.AssetRef, 0, len(raw))
	for _, ref := range raw {
		canonical, err := urlnorm.Normalize(ref, base)
		if err != nil {
			continue
		}
		if !urlnorm.IsSameOrigin(canonical, page.URL) || canonical == page.URL {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		refs = append(refs, model.AssetRef{URL: canonical})
	}
	return refs, nil
}

// resolveBase resolves a <base href> against the page URL.
func resolveBase(pageURL, href string) (string, error) {
	page, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return page.ResolveReference(ref).String(), nil
}

func (e *Extractor) heuristics(doc *goquery.Document, h Heuristics, pageURL string) []string {
	steps := []struct {
		name string
		run  func(*goquery.Document) ([]string, error)
	}{
		{"dynamic content", h.DynamicContent},
		{"framework assets", h.FrameworkAssets},
		{"web fonts", h.WebFonts},
	}

	var refs []string
	for _, step := range steps {
		found, err := step.run(doc)
		if err != nil {
			e.logger.Warn("asset heuristic failed", "heuristic", step.name, "url", pageURL, "error", err)
			continue
		}
		refs = append(refs, found...)
	}
	return refs
}
