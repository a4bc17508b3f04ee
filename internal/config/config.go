package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitesnap"

	// DefaultChunkSize is the number of URLs rendered concurrently per chunk.
	// It also bounds the number of renderer contexts open at the same time.
	DefaultChunkSize = 10

	// DefaultChunkDelay is the pause between two chunks. It keeps the
	// renderer (usually a browser) from being flooded with navigations.
	DefaultChunkDelay = 100 * time.Millisecond

	// DefaultLoadTimeout bounds a single render attempt.
	DefaultLoadTimeout = 30 * time.Second

	// DefaultMaxAttempts is the number of render attempts per URL.
	DefaultMaxAttempts = 3

	// DefaultRetryBackoff is multiplied by the attempt number to get the
	// wait before the next attempt (1s, 2s, ...).
	DefaultRetryBackoff = 1 * time.Second

	// DefaultArchiveBatchSize is the number of files per archive.
	DefaultArchiveBatchSize = 250

	// DefaultMaxConcurrentArchives caps simultaneous archive builds,
	// which in turn caps peak memory during export.
	DefaultMaxConcurrentArchives = 3

	// DefaultAssetRate is the number of asset downloads per second.
	DefaultAssetRate = 10.0

	// DefaultUserAgent identifies sitesnap in HTTP requests.
	DefaultUserAgent = "sitesnap/1.0 (+https://github.com/nao1215/sitesnap)"

	// DefaultMaxBodySize limits the size of a single page or asset body.
	DefaultMaxBodySize = 20 * 1024 * 1024 // 20MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon when an onion origin is crawled without an explicit proxy.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultOutputDir is where archives are written.
	DefaultOutputDir = "."
)

// Renderer names accepted by Config.Renderer.
const (
	RendererHTTP   = "http"
	RendererChrome = "chrome"
)

// Cache backends accepted by Config.CacheBackend.
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
)

// Report formats accepted by Config.ReportFormat.
const (
	ReportFormatMarkdown = "markdown"
	ReportFormatJSON     = "json"
)

// Config holds every option of a scrape or export run.
// It is populated from defaults, the YAML config file and CLI flags, in
// that order, and passed down explicitly.
type Config struct {
	// TargetURL is the seed URL. Its origin bounds the crawl.
	TargetURL string

	// Renderer selects the page renderer ("http" or "chrome").
	Renderer string

	// ChunkSize is the number of URLs processed concurrently.
	ChunkSize int

	// ChunkDelay is the pause between chunks.
	ChunkDelay time.Duration

	// LoadTimeout bounds each render attempt.
	LoadTimeout time.Duration

	// MaxAttempts is the number of render attempts before a URL is dropped.
	MaxAttempts int

	// RetryBackoff is the linear backoff unit between attempts.
	RetryBackoff time.Duration

	// MaxPages stops enqueueing new pages once reached. 0 means unlimited.
	MaxPages int

	// ArchiveBatchSize is the number of files per archive.
	ArchiveBatchSize int

	// MaxConcurrentArchives caps concurrent archive builds.
	MaxConcurrentArchives int

	// OutputDir is the directory archives are delivered to.
	OutputDir string

	// CacheBackend selects the persistent cache ("sqlite" or "redis").
	CacheBackend string

	// CacheDir is the directory holding the SQLite cache.
	// Defaults to the XDG cache directory.
	CacheDir string

	// RedisAddr is the redis server address used by the redis backend.
	RedisAddr string

	// LicenseKey unlocks premium asset heuristics and stronger compression.
	LicenseKey string

	// ProxyAddress routes all HTTP traffic through a SOCKS5 proxy ("host:port").
	ProxyAddress string

	// TorStartupTimeout bounds the embedded Tor bootstrap for onion origins.
	TorStartupTimeout time.Duration

	// RespectRobots drops pages disallowed by the origin's robots.txt.
	RespectRobots bool

	// UserAgent is sent with every HTTP request and by the Chrome renderer.
	UserAgent string

	// MaxBodySize is the maximum body size in bytes read per response.
	MaxBodySize int64

	// AssetRate is the number of asset downloads per second.
	AssetRate float64

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is an explicit config file path. When empty, the file
	// is searched in the working directory and then the home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific settings loaded from the config file.
	SiteConfigs *File

	// ReportFile is where the session summary is written. Empty disables it.
	ReportFile string

	// ReportFormat is the summary format ("markdown" or "json").
	ReportFormat string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Renderer:              RendererHTTP,
		ChunkSize:             DefaultChunkSize,
		ChunkDelay:            DefaultChunkDelay,
		LoadTimeout:           DefaultLoadTimeout,
		MaxAttempts:           DefaultMaxAttempts,
		RetryBackoff:          DefaultRetryBackoff,
		ArchiveBatchSize:      DefaultArchiveBatchSize,
		MaxConcurrentArchives: DefaultMaxConcurrentArchives,
		OutputDir:             DefaultOutputDir,
		CacheBackend:          CacheBackendSQLite,
		CacheDir:              XDGCacheDir(),
		TorStartupTimeout:     DefaultTorStartupTimeout,
		UserAgent:             DefaultUserAgent,
		MaxBodySize:           DefaultMaxBodySize,
		AssetRate:             DefaultAssetRate,
		ReportFormat:          ReportFormatMarkdown,
	}
}

// XDGCacheDir returns the XDG cache directory for sitesnap.
// On Linux: ~/.cache/sitesnap
// On macOS: ~/Library/Caches/sitesnap
// On Windows: %LOCALAPPDATA%\sitesnap\cache
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitesnap.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks a configuration used for scraping.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.TargetURL == "" {
		return ErrNoTarget
	}
	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if c.ChunkDelay < 0 {
		return ErrInvalidChunkDelay
	}
	if c.LoadTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.AssetRate <= 0 {
		return ErrInvalidAssetRate
	}
	switch c.Renderer {
	case RendererHTTP, RendererChrome:
	default:
		return ErrUnknownRenderer
	}
	return c.ValidateExport()
}

// ValidateExport checks the subset of the configuration used by export,
// which runs against an existing cache and needs no target.
func (c *Config) ValidateExport() error {
	if c.ArchiveBatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxConcurrentArchives <= 0 {
		return ErrInvalidConcurrency
	}
	switch c.CacheBackend {
	case CacheBackendSQLite:
	case CacheBackendRedis:
		if c.RedisAddr == "" {
			return ErrNoRedisAddr
		}
	default:
		return ErrUnknownCacheBackend
	}
	switch c.ReportFormat {
	case ReportFormatMarkdown, ReportFormatJSON:
	default:
		return ErrUnknownReportFormat
	}
	return nil
}

// SiteConfig returns the merged site configuration for the target origin.
// A config without a loaded file yields the zero SiteConfig.
func (c *Config) SiteConfig(origin string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(origin)
}
