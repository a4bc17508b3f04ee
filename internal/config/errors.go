package config

import "errors"

// Configuration validation errors returned by Config.Validate and
// Config.ValidateExport.
var (
	// ErrNoTarget is returned when no seed URL is given.
	ErrNoTarget = errors.New("no target specified: provide a URL to scrape")

	// ErrInvalidChunkSize is returned when the chunk size is not positive.
	ErrInvalidChunkSize = errors.New("invalid chunk size: must be positive")

	// ErrInvalidChunkDelay is returned when the chunk delay is negative.
	ErrInvalidChunkDelay = errors.New("invalid chunk delay: must be non-negative")

	// ErrInvalidTimeout is returned when the load timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid load timeout: must be positive")

	// ErrInvalidMaxAttempts is returned when fewer than one attempt is allowed.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be positive")

	// ErrInvalidMaxPages is returned when the page cap is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidAssetRate is returned when the asset download rate is not positive.
	ErrInvalidAssetRate = errors.New("invalid asset rate: must be positive")

	// ErrInvalidBatchSize is returned when the archive batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid archive batch size: must be positive")

	// ErrInvalidConcurrency is returned when archive concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid archive concurrency: must be positive")

	// ErrUnknownRenderer is returned for a renderer other than http or chrome.
	ErrUnknownRenderer = errors.New("unknown renderer: use http or chrome")

	// ErrUnknownCacheBackend is returned for a backend other than sqlite or redis.
	ErrUnknownCacheBackend = errors.New("unknown cache backend: use sqlite or redis")

	// ErrNoRedisAddr is returned when the redis backend has no address.
	ErrNoRedisAddr = errors.New("redis cache backend requires an address")

	// ErrUnknownReportFormat is returned for a format other than markdown or json.
	ErrUnknownReportFormat = errors.New("unknown report format: use markdown or json")
)
