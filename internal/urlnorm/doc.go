// Package urlnorm canonicalizes links into dedup keys, decides which links
// belong to the crawl frontier, and derives archive paths from URLs.
//
// The canonical form of a URL is its origin followed by its path with any
// trailing slash removed. Query strings and fragments are not part of the
// key, so "/a?x=1", "/a#top" and "/a/" all collapse onto "/a".
package urlnorm
