package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitesnap/internal/model"
)

// DBFileName is the SQLite file created inside the cache directory.
const DBFileName = "sitesnap.db"

// CacheDB is the SQLite implementation of Store.
type CacheDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

var _ Store = (*CacheDB)(nil)

// Options configures CacheDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging. Committed writes then survive
	// the process being killed mid-crawl.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CacheDB inside dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CacheDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("cache not found at %s: %w", dbPath, ErrCacheNotFound)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check cache path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer. One connection serializes every write,
	// which also serializes writes for the same key.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CacheDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CacheDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CacheDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CacheDB) createTables() error {
	schema := `
	-- Rendered pages keyed by canonical URL
	CREATE TABLE IF NOT EXISTS pages (
		url TEXT PRIMARY KEY,
		html TEXT NOT NULL,
		title TEXT,
		links TEXT,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Archive entries keyed by archive path
	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		content BLOB NOT NULL,
		content_type TEXT,
		digest TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// PutPage inserts or replaces a rendered page.
func (cdb *CacheDB) PutPage(ctx context.Context, page *model.PageResult) error {
	linksJSON, err := json.Marshal(page.Links)
	if err != nil {
		return fmt.Errorf("failed to serialize links: %w", err)
	}

	fetchedAt := page.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	query := `
	INSERT INTO pages (url, html, title, links, fetched_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		html = excluded.html,
		title = excluded.title,
		links = excluded.links,
		fetched_at = excluded.fetched_at
	`

	if _, err := cdb.db.ExecContext(ctx, query,
		page.URL,
		page.HTML,
		page.Title,
		string(linksJSON),
		fetchedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to store page %s: %w", page.URL, err)
	}
	return nil
}

// GetPage retrieves a page by canonical URL. It returns nil, nil when the
// page is not cached.
func (cdb *CacheDB) GetPage(ctx context.Context, url string) (*model.PageResult, error) {
	query := `SELECT url, html, title, links, fetched_at FROM pages WHERE url = ?`

	page, err := scanPage(cdb.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", url, err)
	}
	return page, nil
}

// ListPages returns every cached page ordered by URL.
func (cdb *CacheDB) ListPages(ctx context.Context) ([]model.PageResult, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT url, html, title, links, fetched_at FROM pages ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []model.PageResult
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, *page)
	}
	return pages, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (*model.PageResult, error) {
	var (
		page      model.PageResult
		title     sql.NullString
		linksJSON sql.NullString
		fetchedAt string
	)
	if err := row.Scan(&page.URL, &page.HTML, &title, &linksJSON, &fetchedAt); err != nil {
		return nil, err
	}
	page.Title = title.String
	page.FetchedAt = parseTimestamp(fetchedAt)
	if linksJSON.String != "" {
		if err := json.Unmarshal([]byte(linksJSON.String), &page.Links); err != nil {
			return nil, fmt.Errorf("failed to parse links: %w", err)
		}
	}
	return &page, nil
}

// PutFile inserts or replaces an archive entry.
func (cdb *CacheDB) PutFile(ctx context.Context, file model.CachedFile) error {
	digest := file.Digest
	if digest == "" {
		digest = model.Digest(file.Content)
	}
	content := file.Content
	if content == nil {
		content = []byte{}
	}

	query := `
	INSERT INTO files (path, content, content_type, digest)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		content = excluded.content,
		content_type = excluded.content_type,
		digest = excluded.digest,
		updated_at = CURRENT_TIMESTAMP
	`

	if _, err := cdb.db.ExecContext(ctx, query, file.Path, content, file.ContentType, digest); err != nil {
		return fmt.Errorf("failed to store file %s: %w", file.Path, err)
	}
	return nil
}

// HasFile reports whether an entry exists for path.
func (cdb *CacheDB) HasFile(ctx context.Context, path string) (bool, error) {
	var count int
	if err := cdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE path = ?`, path).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check file %s: %w", path, err)
	}
	return count > 0, nil
}

// ListFiles returns every cached file ordered by path.
func (cdb *CacheDB) ListFiles(ctx context.Context) ([]model.CachedFile, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT path, content, content_type, digest FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []model.CachedFile
	for rows.Next() {
		var (
			file        model.CachedFile
			contentType sql.NullString
			digest      sql.NullString
		)
		if err := rows.Scan(&file.Path, &file.Content, &contentType, &digest); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		file.ContentType = contentType.String
		file.Digest = digest.String
		files = append(files, file)
	}
	return files, rows.Err()
}

// Stats returns the number of cached pages and files and the total file size.
func (cdb *CacheDB) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := cdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&stats.Pages); err != nil {
		return Stats{}, fmt.Errorf("failed to count pages: %w", err)
	}
	if err := cdb.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(content)), 0) FROM files`,
	).Scan(&stats.Files, &stats.Bytes); err != nil {
		return Stats{}, fmt.Errorf("failed to count files: %w", err)
	}
	return stats, nil
}

// Clear deletes every page and file in one transaction and reclaims the
// freed space.
func (cdb *CacheDB) Clear(ctx context.Context) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after Commit
	}()

	for _, table := range []string{"pages", "files"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}

	if _, err := cdb.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum cache: %w", err)
	}
	return nil
}

// parseTimestamp parses a timestamp string from SQLite.
// SQLite may return timestamps in different formats depending on how they were stored.
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
