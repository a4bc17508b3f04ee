// Package pipeline runs the phases of a session in sequence.
//
// A session is a Pipeline of Steps sharing one State: the crawl fills the
// cache, the sitemap step writes the page manifest, and the export step
// packs the cache into archives. Each step sees the results of the ones
// before it. A stopped crawl halts the pipeline with ErrStopped so nothing
// is exported from a partial cache.
package pipeline
