package urlnorm

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// nonPageExtensions are path extensions never queued as pages. Such
// resources are discovered through markup by the asset extractor instead.
var nonPageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".css":  {},
	".js":   {},
	".xml":  {},
	".pdf":  {},
}

// blockedPathParts are path fragments of admin and login endpoints.
var blockedPathParts = []string{"wp-admin", "wp-login"}

// Normalize resolves raw against base and returns the canonical key
// origin + path, without query, fragment or trailing slash.
//
// Protocol-relative ("//host/x"), origin-relative ("/x") and relative
// ("x", "../x") references are supported. Normalizing a canonical URL
// returns it unchanged.
func Normalize(raw, base string) (string, error) {
	abs, err := resolve(raw, base)
	if err != nil {
		return "", err
	}
	return canonical(abs), nil
}

// Origin returns the scheme://host[:port] part of raw in canonical form.
func Origin(raw string) (string, error) {
	u, err := parseAbsolute(raw)
	if err != nil {
		return "", err
	}
	return origin(u), nil
}

// IsInScope reports whether rawURL may be queued as a page of baseOrigin.
// A URL is in scope when it is same-origin, carries no fragment and no
// query, is not an admin or login endpoint, and does not end in a known
// non-page extension.
func IsInScope(rawURL, baseOrigin string) bool {
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return false
	}
	if !IsSameOrigin(rawURL, baseOrigin) {
		return false
	}
	if u.Fragment != "" || strings.Contains(rawURL, "#") {
		return false
	}
	if u.RawQuery != "" || u.ForceQuery {
		return false
	}
	for _, part := range blockedPathParts {
		if strings.Contains(u.Path, part) {
			return false
		}
	}
	if _, skip := nonPageExtensions[strings.ToLower(path.Ext(u.Path))]; skip {
		return false
	}
	return true
}

// IsSameOrigin reports whether rawURL has the same origin as baseOrigin.
// baseOrigin may be any URL of the origin; only its origin is compared.
func IsSameOrigin(rawURL, baseOrigin string) bool {
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return false
	}
	b, err := parseAbsolute(baseOrigin)
	if err != nil {
		return false
	}
	return origin(u) == origin(b)
}

// PathFor derives the archive-relative path of a URL:
//
//	/             -> index.html
//	/blog/        -> blog/index.html
//	/blog         -> blog/index.html
//	/style.css    -> style.css
//
// A path whose last segment has no extension is treated as a directory.
func PathFor(rawURL string) (string, error) {
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return "", err
	}

	p := u.Path
	if p == "" || p == "/" {
		return "index.html", nil
	}

	dir := strings.HasSuffix(p, "/")
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return "index.html", nil
	}
	if dir || path.Ext(path.Base(p)) == "" {
		return p + "/index.html", nil
	}
	return p, nil
}

// resolve parses raw relative to base and checks the result is a
// navigable http(s) URL.
func resolve(raw, base string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	baseURL, err := parseAbsolute(base)
	if err != nil {
		return nil, fmt.Errorf("%w: base %q", ErrInvalidURL, base)
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err) //nolint:errorlint // parse detail only
	}

	abs := baseURL.ResolveReference(ref)
	if !isHTTP(abs) {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, abs.Scheme)
	}
	return abs, nil
}

// parseAbsolute parses an absolute http(s) URL.
func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if !isHTTP(u) {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidURL, raw)
	}
	return u, nil
}

func isHTTP(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// origin returns the lower-cased scheme://host with the default port
// dropped.
func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

func canonical(u *url.URL) string {
	return origin(u) + strings.TrimRight(u.EscapedPath(), "/")
}
