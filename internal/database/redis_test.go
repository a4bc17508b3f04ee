package database

import (
	"context"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/nao1215/sitesnap/internal/model"
)

func setupRedis(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := OpenRedis(context.Background(), mr.Addr(), WithRedisPrefix("test"))
	if err != nil {
		t.Fatalf("failed to open redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("page round trip", func(t *testing.T) {
		t.Parallel()
		store := setupRedis(t)

		want := &model.PageResult{URL: "https://example.com", HTML: "<p>hi</p>", Title: "Hi", Links: []string{"/a"}}
		if err := store.PutPage(ctx, want); err != nil {
			t.Fatal(err)
		}
		got, err := store.GetPage(ctx, want.URL)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %+v, want %+v", got, want)
		}

		missing, err := store.GetPage(ctx, "https://example.com/none")
		if err != nil || missing != nil {
			t.Errorf("expected nil, nil; got %v, %v", missing, err)
		}
	})

	t.Run("files keep binary content", func(t *testing.T) {
		t.Parallel()
		store := setupRedis(t)

		bin := model.NewCachedFile("b.bin", []byte{0, 1, 2, 255}, "application/octet-stream")
		if err := store.PutFile(ctx, bin); err != nil {
			t.Fatal(err)
		}
		if err := store.PutFile(ctx, model.NewHTMLFile("a.html", "x")); err != nil {
			t.Fatal(err)
		}

		ok, err := store.HasFile(ctx, "b.bin")
		if err != nil || !ok {
			t.Errorf("expected b.bin to exist: %v %v", ok, err)
		}

		files, err := store.ListFiles(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 2 || files[0].Path != "a.html" {
			t.Fatalf("unexpected files %+v", files)
		}
		if !reflect.DeepEqual(files[1].Content, bin.Content) || files[1].Digest != bin.Digest {
			t.Errorf("binary content not preserved: %+v", files[1])
		}
	})

	t.Run("stats and clear", func(t *testing.T) {
		t.Parallel()
		store := setupRedis(t)

		if err := store.PutPage(ctx, &model.PageResult{URL: "https://example.com"}); err != nil {
			t.Fatal(err)
		}
		if err := store.PutFile(ctx, model.NewCachedFile("x.txt", []byte("abc"), "")); err != nil {
			t.Fatal(err)
		}
		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if stats != (Stats{Pages: 1, Files: 1, Bytes: 3}) {
			t.Errorf("unexpected stats %+v", stats)
		}

		if err := store.Clear(ctx); err != nil {
			t.Fatal(err)
		}
		stats, err = store.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if stats != (Stats{}) {
			t.Errorf("expected empty stats after clear, got %+v", stats)
		}
	})

	t.Run("unreachable server fails to open", func(t *testing.T) {
		t.Parallel()
		if _, err := OpenRedis(ctx, "127.0.0.1:1"); err == nil {
			t.Error("expected connection error")
		}
	})
}
