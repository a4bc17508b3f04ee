package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/nao1215/sitesnap/internal/model"
)

// DefaultRedisPrefix namespaces the cache keys.
const DefaultRedisPrefix = "sitesnap"

// RedisStore keeps the cache in two redis hashes, <prefix>:pages and
// <prefix>:files, with JSON-encoded values.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// fileRecord is the redis encoding of a CachedFile. Content is base64 in JSON.
type fileRecord struct {
	Path        string `json:"path"`
	Content     []byte `json:"content"`
	ContentType string `json:"content_type"`
	Digest      string `json:"digest"`
}

// OpenRedis connects to addr and verifies the server answers.
func OpenRedis(ctx context.Context, addr string, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	s := &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisStore) pagesKey() string { return s.prefix + ":pages" }
func (s *RedisStore) filesKey() string { return s.prefix + ":files" }

// PutPage stores a page under its URL.
func (s *RedisStore) PutPage(ctx context.Context, page *model.PageResult) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to serialize page: %w", err)
	}
	if err := s.client.HSet(ctx, s.pagesKey(), page.URL, data).Err(); err != nil {
		return fmt.Errorf("failed to store page %s: %w", page.URL, err)
	}
	return nil
}

// GetPage returns the page cached for url, or nil when absent.
func (s *RedisStore) GetPage(ctx context.Context, url string) (*model.PageResult, error) {
	data, err := s.client.HGet(ctx, s.pagesKey(), url).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", url, err)
	}
	var page model.PageResult
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to parse page %s: %w", url, err)
	}
	return &page, nil
}

// ListPages returns every cached page ordered by URL.
func (s *RedisStore) ListPages(ctx context.Context) ([]model.PageResult, error) {
	all, err := s.client.HGetAll(ctx, s.pagesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	pages := make([]model.PageResult, 0, len(all))
	for url, data := range all {
		var page model.PageResult
		if err := json.Unmarshal([]byte(data), &page); err != nil {
			return nil, fmt.Errorf("failed to parse page %s: %w", url, err)
		}
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })
	return pages, nil
}

// PutFile stores a file under its path.
func (s *RedisStore) PutFile(ctx context.Context, file model.CachedFile) error {
	digest := file.Digest
	if digest == "" {
		digest = model.Digest(file.Content)
	}
	data, err := json.Marshal(fileRecord{
		Path:        file.Path,
		Content:     file.Content,
		ContentType: file.ContentType,
		Digest:      digest,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize file: %w", err)
	}
	if err := s.client.HSet(ctx, s.filesKey(), file.Path, data).Err(); err != nil {
		return fmt.Errorf("failed to store file %s: %w", file.Path, err)
	}
	return nil
}

// HasFile reports whether an entry exists for path.
func (s *RedisStore) HasFile(ctx context.Context, path string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.filesKey(), path).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check file %s: %w", path, err)
	}
	return ok, nil
}

// ListFiles returns every cached file ordered by path.
func (s *RedisStore) ListFiles(ctx context.Context) ([]model.CachedFile, error) {
	all, err := s.client.HGetAll(ctx, s.filesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	files := make([]model.CachedFile, 0, len(all))
	for path, data := range all {
		var rec fileRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to parse file %s: %w", path, err)
		}
		files = append(files, model.CachedFile{
			Path:        rec.Path,
			Content:     rec.Content,
			ContentType: rec.ContentType,
			Digest:      rec.Digest,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Stats returns the number of cached pages and files and the total file size.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	pages, err := s.client.HLen(ctx, s.pagesKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count pages: %w", err)
	}
	files, err := s.ListFiles(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Pages: int(pages), Files: len(files)}
	for _, f := range files {
		stats.Bytes += int64(len(f.Content))
	}
	return stats, nil
}

// Clear deletes both hashes.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.pagesKey(), s.filesKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
