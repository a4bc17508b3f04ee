package model

import (
	"encoding/hex"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// HTMLContentType is the content type of every cached page.
const HTMLContentType = "text/html; charset=utf-8"

// CrawlTarget is a canonical URL handed to the renderer.
// Two targets are equal when their URLs are equal.
type CrawlTarget struct {
	URL string `json:"url"`
}

// PageResult is a rendered page. It is created once per successful render
// and replaced wholesale when the page is rendered again.
type PageResult struct {
	// URL is the canonical URL of the page.
	URL string `json:"url"`

	// HTML is the fully rendered document.
	HTML string `json:"html"`

	// Title is the document title.
	Title string `json:"title"`

	// Links are the outbound links in document order, as the renderer
	// reported them (absolute or relative, not yet normalized).
	Links []string `json:"links"`

	// FetchedAt is when the page was rendered.
	FetchedAt time.Time `json:"fetched_at"`
}

// AssetRef is an embedded resource discovered on a page.
type AssetRef struct {
	// URL is the canonical absolute URL of the asset.
	URL string `json:"url"`
}

// CachedFile is one entry of the output archive.
type CachedFile struct {
	// Path is the archive-relative path, derived from the source URL.
	Path string `json:"path"`

	// Content is the raw file body.
	Content []byte `json:"-"`

	// ContentType is the MIME type of Content.
	ContentType string `json:"content_type"`

	// Digest is the hex SHA3-256 of Content.
	Digest string `json:"digest"`
}

// NewCachedFile builds a CachedFile and fills in its digest. An empty
// contentType is guessed from the path extension and then the content.
func NewCachedFile(filePath string, content []byte, contentType string) CachedFile {
	if contentType == "" {
		contentType = GuessContentType(filePath, content)
	}
	return CachedFile{
		Path:        filePath,
		Content:     content,
		ContentType: contentType,
		Digest:      Digest(content),
	}
}

// NewHTMLFile builds the CachedFile of a rendered page.
func NewHTMLFile(filePath, html string) CachedFile {
	return NewCachedFile(filePath, []byte(html), HTMLContentType)
}

// Digest returns the hex SHA3-256 digest of content.
func Digest(content []byte) string {
	sum := sha3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Size returns the content length in bytes.
func (f CachedFile) Size() int {
	return len(f.Content)
}

// GuessContentType returns a MIME type for a file from its extension,
// falling back to content sniffing.
func GuessContentType(filePath string, content []byte) string {
	ext := strings.ToLower(path.Ext(filePath))
	if ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	return http.DetectContentType(content)
}
