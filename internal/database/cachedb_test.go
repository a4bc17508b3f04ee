package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/sitesnap/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CacheDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, DBFileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, DBFileName) {
			t.Errorf("unexpected path %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns ErrCacheNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false, EnableWAL: true})
		if !errors.Is(err, ErrCacheNotFound) {
			t.Errorf("expected ErrCacheNotFound, got %v", err)
		}
	})
}

func TestPageRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	want := &model.PageResult{
		URL:       "https://example.com/about",
		HTML:      "<html><title>About</title></html>",
		Title:     "About",
		Links:     []string{"/", "/contact", "https://other.com/"},
		FetchedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := db.PutPage(ctx, want); err != nil {
		t.Fatalf("PutPage failed: %v", err)
	}

	got, err := db.GetPage(ctx, want.URL)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected page, got nil")
	}
	if !got.FetchedAt.Equal(want.FetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, want.FetchedAt)
	}
	got.FetchedAt = want.FetchedAt
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	t.Run("missing page is nil without error", func(t *testing.T) {
		t.Parallel()
		page, err := db.GetPage(ctx, "https://example.com/missing")
		if err != nil || page != nil {
			t.Errorf("expected nil, nil; got %v, %v", page, err)
		}
	})
}

func TestPutPageReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	url := "https://example.com"
	if err := db.PutPage(ctx, &model.PageResult{URL: url, HTML: "v1", Links: []string{"/a"}}); err != nil {
		t.Fatal(err)
	}
	if err := db.PutPage(ctx, &model.PageResult{URL: url, HTML: "v2", Title: "new"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetPage(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	if got.HTML != "v2" || got.Title != "new" || len(got.Links) != 0 {
		t.Errorf("page not replaced wholesale: %+v", got)
	}

	pages, err := db.ListPages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 {
		t.Errorf("expected 1 page, got %d", len(pages))
	}
}

func TestFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	files := []model.CachedFile{
		model.NewHTMLFile("index.html", "<html></html>"),
		model.NewCachedFile("img/logo.png", []byte{0x89, 'P', 'N', 'G'}, "image/png"),
		model.NewCachedFile("css/site.css", []byte("body{}"), ""),
	}
	for _, f := range files {
		if err := db.PutFile(ctx, f); err != nil {
			t.Fatalf("PutFile(%s) failed: %v", f.Path, err)
		}
	}

	t.Run("HasFile", func(t *testing.T) {
		t.Parallel()
		ok, err := db.HasFile(ctx, "img/logo.png")
		if err != nil || !ok {
			t.Errorf("expected file to exist: %v %v", ok, err)
		}
		ok, err = db.HasFile(ctx, "img/missing.png")
		if err != nil || ok {
			t.Errorf("expected file to be missing: %v %v", ok, err)
		}
	})

	t.Run("ListFiles is ordered by path", func(t *testing.T) {
		t.Parallel()
		got, err := db.ListFiles(ctx)
		if err != nil {
			t.Fatal(err)
		}
		paths := make([]string, 0, len(got))
		for _, f := range got {
			paths = append(paths, f.Path)
		}
		want := []string{"css/site.css", "img/logo.png", "index.html"}
		if !reflect.DeepEqual(paths, want) {
			t.Errorf("paths = %v, want %v", paths, want)
		}
		if string(got[1].Content) != "\x89PNG" || got[1].ContentType != "image/png" {
			t.Errorf("unexpected file %+v", got[1])
		}
		if got[1].Digest != model.Digest(got[1].Content) {
			t.Error("digest not preserved")
		}
	})
}

func TestStatsAndClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	if err := db.PutPage(ctx, &model.PageResult{URL: "https://example.com", HTML: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := db.PutFile(ctx, model.NewCachedFile("a.txt", []byte("12345"), "text/plain")); err != nil {
		t.Fatal(err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pages != 1 || stats.Files != 1 || stats.Bytes != 5 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := db.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	stats, err = db.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (Stats{}) {
		t.Errorf("expected empty cache, got %+v", stats)
	}
}

func TestCacheSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := db.PutPage(ctx, &model.PageResult{URL: "https://example.com/a", HTML: "a", Links: []string{"/b"}}); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	page, err := reopened.GetPage(ctx, "https://example.com/a")
	if err != nil || page == nil {
		t.Fatalf("expected cached page after reopen, got %v %v", page, err)
	}
	if len(page.Links) != 1 || page.Links[0] != "/b" {
		t.Errorf("unexpected links %v", page.Links)
	}
}

func TestConcurrentWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := filepath.Join("p", string(rune('a'+i))+".txt")
			if err := db.PutFile(ctx, model.NewCachedFile(path, []byte{byte(i)}, "")); err != nil {
				t.Errorf("PutFile failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Files != 20 {
		t.Errorf("expected 20 files, got %d", stats.Files)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		zero bool
	}{
		{"2026-01-02T03:04:05.123Z", false},
		{"2026-01-02T03:04:05Z", false},
		{"2026-01-02 03:04:05", false},
		{"not a time", true},
	}
	for _, tt := range tests {
		if got := parseTimestamp(tt.in); got.IsZero() != tt.zero {
			t.Errorf("parseTimestamp(%q) zero=%v, want %v", tt.in, got.IsZero(), tt.zero)
		}
	}
}
