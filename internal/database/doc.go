// Package database provides the persistent cache of a crawl.
//
// The cache has two logical tables:
//   - pages: rendered PageResults keyed by canonical URL
//   - files: archive entries (CachedFile) keyed by archive path
//
// CacheDB stores both in a single SQLite file (modernc.org/sqlite, CGO-free)
// in WAL mode so a crawl interrupted at any point can be resumed: pages
// already in the cache are not rendered again. RedisStore keeps the same
// layout in two redis hashes for setups that share a cache between hosts.
// Tiered puts an in-memory page map in front of either backend.
//
// The cache is dropped with Clear only after every archive was delivered.
package database
