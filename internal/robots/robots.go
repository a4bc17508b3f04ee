// Package robots evaluates the robots.txt rules of the crawled origin.
package robots

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/sitesnap/internal/netclient"
)

// Getter fetches a URL. *netclient.Client implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*netclient.Response, error)
}

// Agent answers whether a URL of one origin may be crawled.
// The zero value allows everything.
type Agent struct {
	group *robotstxt.Group
}

// Load fetches origin/robots.txt and selects the group for userAgent.
// Fetch failures fail open: the returned agent allows everything and the
// error is only logged.
func Load(ctx context.Context, getter Getter, origin, userAgent string, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := fetch(ctx, getter, origin)
	if err != nil {
		logger.Warn("robots.txt unavailable, crawling without restrictions", "origin", origin, "error", err)
		return &Agent{}
	}

	group := data.FindGroup(userAgent)
	logger.Debug("robots.txt loaded", "origin", origin, "crawl_delay", group.CrawlDelay)
	return &Agent{group: group}
}

// Parse builds an agent from a robots.txt body.
func Parse(body []byte, userAgent string) (*Agent, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return &Agent{group: data.FindGroup(userAgent)}, nil
}

func fetch(ctx context.Context, getter Getter, origin string) (*robotstxt.RobotsData, error) {
	resp, err := getter.Get(ctx, origin+"/robots.txt")
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	// 4xx means no restrictions and 5xx means full disallow.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// Allowed reports whether rawURL may be crawled.
func (a *Agent) Allowed(rawURL string) bool {
	if a == nil || a.group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return a.group.Test(path)
}

// CrawlDelay returns the Crawl-delay directive, or 0.
func (a *Agent) CrawlDelay() time.Duration {
	if a == nil || a.group == nil {
		return 0
	}
	return a.group.CrawlDelay
}
