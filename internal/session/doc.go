// Package session owns the lifecycle of a crawl session.
//
// A Controller runs at most one session at a time. Start launches the
// crawl, sitemap and export phases in the background; Stop asks the crawl
// to finish its current chunk and skips the export. Whatever way a
// session ends, every open renderer tab and pending timer is released and
// the session reaches a terminal status: completed, stopped or failed.
//
// Progress is reported as model.ProgressEvent values to any number of
// Observers and kept in the controller's history.
package session
