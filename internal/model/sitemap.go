package model

import (
	"encoding/json"
	"time"
)

// SitemapFile is the archive path of the crawl manifest.
const SitemapFile = "sitemap.json"

// SitemapEntry describes one crawled page.
type SitemapEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Path  string `json:"path"`

	// Digest is the SHA3-256 of the archived HTML, equal to the Digest
	// of the CachedFile stored at Path.
	Digest string `json:"digest"`
}

// Sitemap is the manifest shipped inside the archive next to the pages.
type Sitemap struct {
	BaseURL     string         `json:"baseUrl"`
	TotalPages  int            `json:"totalPages"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Pages       []SitemapEntry `json:"pages"`
}

// CachedFile encodes the sitemap as an indented JSON archive entry.
func (s Sitemap) CachedFile() (CachedFile, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return CachedFile{}, err
	}
	return NewCachedFile(SitemapFile, data, "application/json"), nil
}
