// Package crawler implements the crawl frontier and the scheduler that
// drives it.
//
// # Frontier
//
// Every URL seen during a session lives in exactly one of three sets:
// toVisit, inFlight and processed. URLs move strictly forward, so a page
// is never processed twice.
//
// # Scheduling
//
// The Scheduler takes up to ChunkSize URLs from toVisit, processes them
// concurrently, waits ChunkDelay, and repeats. Only one chunk is open at a
// time, which bounds the number of simultaneous renderer contexts.
//
// For each URL the page cache is consulted first. A cached page is
// replayed (its HTML is written to the file cache and its links are
// queued) without calling the Renderer. Otherwise the Renderer is called
// up to MaxAttempts times with a linear backoff. A URL whose attempts are
// exhausted is still marked processed and reported, never re-queued.
//
// # Usage
//
//	s := crawler.NewScheduler(renderer, cache,
//		crawler.WithChunkSize(10),
//		crawler.WithAssetCollector(extractor),
//	)
//	result, err := s.Run(ctx, "https://example.com")
package crawler
