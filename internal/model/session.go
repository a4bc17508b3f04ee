package model

import "time"

// Session is one crawl of one origin.
type Session struct {
	// ID uniquely identifies the session in logs and reports.
	ID string `json:"id"`

	// BaseOrigin is the scheme://host of the seed URL.
	BaseOrigin string `json:"base_origin"`

	// SeedURL is the canonical seed.
	SeedURL string `json:"seed_url"`

	// Running is false once a stop was requested or the session ended.
	Running bool `json:"running"`

	// StartedAt is when the session started.
	StartedAt time.Time `json:"started_at"`

	// EndedAt is when the session reached a terminal status.
	EndedAt time.Time `json:"ended_at,omitzero"`

	// Premium is true when premium capabilities are enabled.
	Premium bool `json:"premium"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// LastError is the message of the error that failed the session.
	LastError string `json:"last_error,omitempty"`
}

// ProgressEvent is emitted to observers while a session runs.
type ProgressEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Message     string    `json:"message"`
	Queued      int       `json:"queued"`
	Processed   int       `json:"processed"`
	AssetsFound int       `json:"assets_found"`
	Status      Status    `json:"status"`
}

// ArchiveInfo describes one delivered archive.
type ArchiveInfo struct {
	// Name is the archive file name, e.g. site-archive-part1.zip.
	Name string `json:"name"`

	// Location is where the sink put the archive.
	Location string `json:"location"`

	// Files is the number of entries in the archive.
	Files int `json:"files"`

	// Bytes is the compressed archive size.
	Bytes int `json:"bytes"`
}

// SessionSummary is written at the end of a session.
type SessionSummary struct {
	Session     Session       `json:"session"`
	Pages       int           `json:"pages"`
	CachedPages int           `json:"cached_pages"`
	Assets      int           `json:"assets"`
	Failed      []string      `json:"failed,omitempty"`
	Archives    []ArchiveInfo `json:"archives,omitempty"`
	Duration    time.Duration `json:"duration"`
}
