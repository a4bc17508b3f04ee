// Package main provides the entry point for the sitesnap CLI.
//
// sitesnap crawls every page of one website, renders each page, downloads
// the assets it references and delivers the result as numbered zip
// archives.
//
// Usage:
//
//	sitesnap scrape https://example.com
//	sitesnap export
//	sitesnap cache status
//
// See --help for all available options.
package main

func main() {
	Execute()
}
