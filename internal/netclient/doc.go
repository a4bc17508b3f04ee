// Package netclient provides the HTTP client used to fetch pages, assets
// and robots.txt.
//
// Requests can go out directly, through a SOCKS5 proxy, or through an
// embedded Tor daemon for .onion origins. Every request carries the
// configured User-Agent, cookie and extra headers, and compressed bodies
// (gzip, deflate, br) are decoded transparently.
package netclient
