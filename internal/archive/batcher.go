package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/flate"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitesnap/internal/model"
)

// Defaults for the batcher.
const (
	DefaultBatchSize     = 250
	DefaultMaxConcurrent = 3
	DefaultNamePrefix    = "site-archive"
)

// Compression levels. Fast is the default; Best is reserved for premium
// sessions.
const (
	FastCompression = flate.BestSpeed
	BestCompression = flate.BestCompression
)

// Source is the cache an export reads from and clears afterwards.
type Source interface {
	ListFiles(ctx context.Context) ([]model.CachedFile, error)
	Clear(ctx context.Context) error
}

// Batcher splits files into archives and delivers them to a Sink.
type Batcher struct {
	sink          Sink
	batchSize     int
	maxConcurrent int
	level         int
	prefix        string
	logger        *slog.Logger
	onDelivered   func(model.ArchiveInfo)
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithBatchSize sets the number of files per archive.
func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithMaxConcurrent sets how many archives are built at once.
func WithMaxConcurrent(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.maxConcurrent = n
		}
	}
}

// WithCompressionLevel sets the deflate level (flate.BestSpeed to
// flate.BestCompression).
func WithCompressionLevel(level int) Option {
	return func(b *Batcher) {
		b.level = level
	}
}

// WithNamePrefix sets the archive name prefix.
func WithNamePrefix(prefix string) Option {
	return func(b *Batcher) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) {
		b.logger = logger
	}
}

// WithOnDelivered registers a callback run after each delivery. It may be
// called from several goroutines at once.
func WithOnDelivered(fn func(model.ArchiveInfo)) Option {
	return func(b *Batcher) {
		b.onDelivered = fn
	}
}

// NewBatcher creates a batcher delivering to sink.
func NewBatcher(sink Sink, opts ...Option) *Batcher {
	b := &Batcher{
		sink:          sink,
		batchSize:     DefaultBatchSize,
		maxConcurrent: DefaultMaxConcurrent,
		level:         FastCompression,
		prefix:        DefaultNamePrefix,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ArchiveName returns the name of the archive for the zero-based batch
// index i.
func (b *Batcher) ArchiveName(i int) string {
	return fmt.Sprintf("%s-part%d.zip", b.prefix, i+1)
}

// Export archives every file of src and clears src once all archives were
// delivered.
func (b *Batcher) Export(ctx context.Context, src Source) ([]model.ArchiveInfo, error) {
	files, err := src.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cached files: %w", err)
	}

	archives, err := b.ExportAll(ctx, files)
	if err != nil {
		return archives, err
	}

	if err := src.Clear(ctx); err != nil {
		return archives, fmt.Errorf("clear cache: %w", err)
	}
	b.logger.Info("cache cleared after export", "archives", len(archives))
	return archives, nil
}

// ExportAll builds and delivers one archive per batch of files. Archive
// infos are returned in batch order. On failure the remaining builds are
// cancelled and the infos of archives already delivered are returned with
// the error.
func (b *Batcher) ExportAll(ctx context.Context, files []model.CachedFile) ([]model.ArchiveInfo, error) {
	if len(files) == 0 {
		return nil, ErrEmptyCache
	}

	batches := split(files, b.batchSize)
	b.logger.Info("exporting archives",
		"files", len(files),
		"archives", len(batches),
		"max_concurrent", b.maxConcurrent,
	)

	start := time.Now()
	results := make([]model.ArchiveInfo, len(batches))
	delivered := make([]bool, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.maxConcurrent)

	for i, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			name := b.ArchiveName(i)
			data, err := b.build(batch)
			if err != nil {
				return fmt.Errorf("build %s: %w", name, err)
			}

			if err := b.sink.Deliver(gctx, data, name); err != nil {
				if !errors.Is(err, ErrDeliveryError) {
					err = fmt.Errorf("%w: %s: %w", ErrDeliveryError, name, err)
				}
				return err
			}

			info := model.ArchiveInfo{
				Name:  name,
				Files: len(batch),
				Bytes: len(data),
			}
			if loc, ok := b.sink.(Locator); ok {
				info.Location = loc.Location(name)
			}
			results[i] = info
			delivered[i] = true

			b.logger.Info("archive delivered", "name", name, "files", info.Files, "bytes", info.Bytes)
			if b.onDelivered != nil {
				b.onDelivered(info)
			}
			return nil
		})
	}

	err := g.Wait()

	done := make([]model.ArchiveInfo, 0, len(results))
	for i, ok := range delivered {
		if ok {
			done = append(done, results[i])
		}
	}

	if err != nil {
		b.logger.Error("export failed", "delivered", len(done), "archives", len(batches), "error", err)
		return done, err
	}

	b.logger.Info("export complete", "archives", len(done), "elapsed", time.Since(start))
	return done, nil
}

// build zips files with the configured deflate level.
func (b *Batcher) build(files []model.CachedFile) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, b.level)
	})

	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Path,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.Content); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// split cuts files into consecutive batches of at most size entries.
func split(files []model.CachedFile, size int) [][]model.CachedFile {
	batches := make([][]model.CachedFile, 0, (len(files)+size-1)/size)
	for start := 0; start < len(files); start += size {
		end := min(start+size, len(files))
		batches = append(batches, files[start:end])
	}
	return batches
}
