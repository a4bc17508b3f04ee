package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink accepts finished archives. Implementations must be safe for
// concurrent use and wrap failures with ErrDeliveryError.
type Sink interface {
	Deliver(ctx context.Context, data []byte, filename string) error
}

// Locator is implemented by sinks that can tell where an archive ended up.
type Locator interface {
	Location(filename string) string
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, data []byte, filename string) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, data []byte, filename string) error {
	return f(ctx, data, filename)
}

// DirSink writes archives into a directory.
type DirSink struct {
	dir string
}

var (
	_ Sink    = (*DirSink)(nil)
	_ Locator = (*DirSink)(nil)
)

// NewDirSink creates a sink writing into dir, created on first delivery.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Deliver writes data to dir/filename. The file appears atomically.
func (s *DirSink) Deliver(ctx context.Context, data []byte, filename string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeliveryError, filename, err)
	}
	if filename != filepath.Base(filename) {
		return fmt.Errorf("%w: invalid archive name %q", ErrDeliveryError, filename)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryError, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+filename+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryError, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %s: %w", ErrDeliveryError, filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeliveryError, filename, err)
	}
	if err := os.Rename(tmp.Name(), s.Location(filename)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeliveryError, filename, err)
	}
	return nil
}

// Location returns the path an archive is written to.
func (s *DirSink) Location(filename string) string {
	return filepath.Join(s.dir, filename)
}
