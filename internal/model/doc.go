// Package model defines the data structures shared by the crawler, the
// cache store, the archive batcher and the session controller.
//
// This package contains the following main types:
//   - PageResult: a rendered page as stored in the page cache
//   - CachedFile: an archive entry stored in the file cache
//   - Session and Status: the lifecycle of one crawl
//   - ProgressEvent: what observers receive while a session runs
//   - Sitemap: the manifest shipped inside the archive
//   - SessionSummary: the end-of-run report
package model
