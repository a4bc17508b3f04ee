package crawler

import (
	"net/url"
	"path/filepath"
	"strings"
)

// PathFilter returns a predicate that applies ignore and follow glob
// patterns to the path of a URL:
//  1. If the path matches any ignore pattern, the URL is rejected
//  2. If follow patterns are set and the path matches none, it is rejected
//  3. Otherwise it is accepted
//
// With no patterns at all, PathFilter returns nil.
func PathFilter(ignore, follow []string) func(string) bool {
	if len(ignore) == 0 && len(follow) == 0 {
		return nil
	}

	return func(targetURL string) bool {
		u, err := url.Parse(targetURL)
		if err != nil {
			return false
		}

		path := u.Path
		if path == "" {
			path = "/"
		}

		for _, pattern := range ignore {
			if matchPattern(pattern, path) {
				return false
			}
		}

		if len(follow) == 0 {
			return true
		}
		for _, pattern := range follow {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match a whole subtree
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(path, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}

	return false
}
