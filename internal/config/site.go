package config

// SiteConfig holds site-specific configuration for a single origin.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent with every request to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers included in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the global User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// IgnorePatterns are URL path globs skipped during crawling.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict crawling to URL paths matching these globs.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// CacheFile is the cache section of the configuration file.
type CacheFile struct {
	// Backend is "sqlite" (default) or "redis".
	Backend string `yaml:"backend,omitempty"`

	// Dir is the SQLite cache directory.
	Dir string `yaml:"dir,omitempty"`

	// RedisAddr is the redis server address.
	RedisAddr string `yaml:"redisAddr,omitempty"`
}

// File represents the structure of the .sitesnap.yaml configuration file.
type File struct {
	// Sites maps origins (e.g. "https://example.com") to their configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Cache selects and configures the persistent cache.
	Cache CacheFile `yaml:"cache,omitempty"`

	// LicenseKey is used when --license is not given.
	LicenseKey string `yaml:"license,omitempty"`

	// Proxy is a SOCKS5 proxy address used when --proxy is not given.
	Proxy string `yaml:"proxy,omitempty"`
}

// GetSiteConfig returns the configuration for an origin merged over defaults.
func (cf *File) GetSiteConfig(origin string) SiteConfig {
	result := cf.Defaults
	if cf.Defaults.Headers != nil {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[origin]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	return result
}
