package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/nao1215/sitesnap/internal/crawler"
	"github.com/nao1215/sitesnap/internal/netclient"
)

// HTTPRenderer renders pages with plain HTTP requests.
type HTTPRenderer struct {
	client *netclient.Client
	logger *slog.Logger
}

// HTTPOption configures an HTTPRenderer.
type HTTPOption func(*HTTPRenderer)

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(r *HTTPRenderer) {
		r.logger = logger
	}
}

// NewHTTPRenderer creates a renderer fetching pages with client.
func NewHTTPRenderer(client *netclient.Client, opts ...HTTPOption) *HTTPRenderer {
	r := &HTTPRenderer{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render implements crawler.Renderer.
func (r *HTTPRenderer) Render(ctx context.Context, url string, timeout time.Duration) (*crawler.RenderResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := r.client.Get(ctx, url)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", crawler.ErrPageLoadTimeout, url, timeout)
		}
		return nil, fmt.Errorf("%w: %s: %w", crawler.ErrRenderError, url, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s: status %d", crawler.ErrRenderError, url, resp.StatusCode)
	}
	if !isHTML(resp.ContentType) {
		return nil, fmt.Errorf("%w: %s: not an HTML document (%s)", crawler.ErrRenderError, url, resp.ContentType)
	}

	doc, err := decodeHTML(resp.Body, resp.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", crawler.ErrRenderError, url, err)
	}

	// Links resolve against the final URL so redirected pages keep
	// working relative references.
	parser, err := crawler.NewParser(resp.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", crawler.ErrRenderError, url, err)
	}
	parsed, err := parser.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", crawler.ErrRenderError, url, err)
	}

	r.logger.Debug("http render complete",
		"url", url,
		"final_url", resp.URL,
		"latency_ms", time.Since(start).Milliseconds(),
		"html_bytes", len(doc),
	)

	return &crawler.RenderResult{
		HTML:  doc,
		Title: parsed.Title,
		Links: parsed.Links,
	}, nil
}

// isHTML reports whether a Content-Type names an HTML document. A
// missing type is treated as HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// decodeHTML converts body to UTF-8 using the charset of the
// Content-Type, a <meta> declaration or content sniffing.
func decodeHTML(body []byte, contentType string) (string, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
