// Package assets discovers the embedded resources of rendered pages and
// stores them in the file cache.
//
// The Extractor scans a page with a fixed selector table (images,
// scripts, stylesheets, icons, media, frames) and the url(...) references
// of inline styles. Premium sessions add heuristic selectors for lazily
// loaded images, framework preloads and web fonts. Only assets on the
// page's own origin are kept.
//
// The Collector ties extraction to a rate-limited Fetcher and the cache,
// and implements crawler.AssetCollector.
package assets
