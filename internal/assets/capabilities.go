package assets

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Capabilities gates optional extraction features.
type Capabilities struct {
	// PremiumEnabled turns on heuristic extraction.
	PremiumEnabled bool

	// Heuristics supplies the extra selectors. A nil value disables
	// them even for premium sessions.
	Heuristics Heuristics
}

// Heuristics finds assets the selector table misses. Each method returns
// raw references as written in the document; the extractor resolves and
// scope-filters them.
type Heuristics interface {
	// DynamicContent finds lazily loaded media.
	DynamicContent(doc *goquery.Document) ([]string, error)

	// FrameworkAssets finds preloaded bundles and manifests.
	FrameworkAssets(doc *goquery.Document) ([]string, error)

	// WebFonts finds font files.
	WebFonts(doc *goquery.Document) ([]string, error)
}

// cssURLPattern matches url(...) references in CSS.
var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)

// fontFacePattern matches @font-face blocks.
var fontFacePattern = regexp.MustCompile(`(?is)@font-face\s*\{[^}]*\}`)

// lazyAttributes hold deferred image sources used by lazy-loading
// libraries.
var lazyAttributes = []string{"data-src", "data-lazy-src", "data-original", "data-bg"}

// AdvancedSelectors is the built-in Heuristics implementation.
type AdvancedSelectors struct{}

var _ Heuristics = AdvancedSelectors{}

// DynamicContent returns lazy-load attributes and every srcset candidate.
func (AdvancedSelectors) DynamicContent(doc *goquery.Document) ([]string, error) {
	var refs []string
	for _, attr := range lazyAttributes {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			refs = append(refs, s.AttrOr(attr, ""))
		})
	}
	doc.Find("img[srcset], source[srcset]").Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, parseSrcset(s.AttrOr("srcset", ""))...)
	})
	doc.Find("[data-srcset]").Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, parseSrcset(s.AttrOr("data-srcset", ""))...)
	})
	return refs, nil
}

// FrameworkAssets returns preload, modulepreload and manifest links.
func (AdvancedSelectors) FrameworkAssets(doc *goquery.Document) ([]string, error) {
	var refs []string
	doc.Find(`link[rel~="preload"][href], link[rel~="modulepreload"][href], link[rel~="manifest"][href]`).
		Each(func(_ int, s *goquery.Selection) {
			if s.AttrOr("as", "") == "font" {
				return
			}
			refs = append(refs, s.AttrOr("href", ""))
		})
	return refs, nil
}

// WebFonts returns font preloads and the url(...) sources of inline
// @font-face rules.
func (AdvancedSelectors) WebFonts(doc *goquery.Document) ([]string, error) {
	var refs []string
	doc.Find(`link[as="font"][href]`).Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, s.AttrOr("href", ""))
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, block := range fontFacePattern.FindAllString(s.Text(), -1) {
			refs = append(refs, cssURLs(block)...)
		}
	})
	return refs, nil
}

// parseSrcset returns the URL of every srcset candidate.
func parseSrcset(srcset string) []string {
	var refs []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			refs = append(refs, fields[0])
		}
	}
	return refs
}

// cssURLs returns the url(...) references in css.
func cssURLs(css string) []string {
	matches := cssURLPattern.FindAllStringSubmatch(css, -1)
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, strings.TrimSpace(m[1]))
	}
	return refs
}
