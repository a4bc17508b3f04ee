package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrReleased is returned by Sleep when the registry was released while
// the caller was waiting.
var ErrReleased = errors.New("resources released")

// Default release retry policy for tabs.
const (
	DefaultReleaseAttempts = 3
	DefaultReleaseBackoff  = 500 * time.Millisecond
)

// Registry tracks open tabs and pending timers of one session.
// The zero value is not usable; create one with NewRegistry.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	tabs    map[uint64]tab
	timers  map[uint64]*time.Timer
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
	backoff time.Duration
}

type tab struct {
	name    string
	release func() error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithReleaseBackoff sets the backoff unit between tab release attempts.
func WithReleaseBackoff(d time.Duration) Option {
	return func(r *Registry) {
		r.backoff = d
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tabs:    make(map[uint64]tab),
		timers:  make(map[uint64]*time.Timer),
		done:    make(chan struct{}),
		logger:  slog.Default(),
		backoff: DefaultReleaseBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TrackTab registers an open renderer context. The returned function
// releases it and removes it from the registry; calling it more than once
// is a no-op. After ReleaseAll, TrackTab releases the tab immediately.
func (r *Registry) TrackTab(name string, release func() error) (closeTab func() error) {
	r.mu.Lock()
	if r.isReleased() {
		r.mu.Unlock()
		_ = release()
		return func() error { return nil }
	}
	r.nextID++
	id := r.nextID
	r.tabs[id] = tab{name: name, release: release}
	r.mu.Unlock()

	return func() error {
		r.mu.Lock()
		t, ok := r.tabs[id]
		delete(r.tabs, id)
		r.mu.Unlock()
		if !ok {
			return nil
		}
		return t.release()
	}
}

// Sleep waits for d on a tracked timer. It returns ctx.Err() when ctx is
// done first and ErrReleased when the registry is released first.
func (r *Registry) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	r.mu.Lock()
	if r.isReleased() {
		r.mu.Unlock()
		return ErrReleased
	}
	r.nextID++
	id := r.nextID
	timer := time.NewTimer(d)
	r.timers[id] = timer
	r.mu.Unlock()

	defer func() {
		timer.Stop()
		r.mu.Lock()
		delete(r.timers, id)
		r.mu.Unlock()
	}()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrReleased
	}
}

// OpenTabs returns the number of tracked tabs.
func (r *Registry) OpenTabs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tabs)
}

// PendingTimers returns the number of tracked timers.
func (r *Registry) PendingTimers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Released reports whether ReleaseAll was called.
func (r *Registry) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isReleased()
}

func (r *Registry) isReleased() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// ReleaseAll stops every timer and releases every tab. A tab whose release
// fails is retried up to DefaultReleaseAttempts times with a linear
// backoff. Errors of tabs that could not be released are joined.
// ReleaseAll is idempotent.
func (r *Registry) ReleaseAll(ctx context.Context) error {
	r.mu.Lock()
	r.once.Do(func() { close(r.done) })
	timers := r.timers
	tabs := r.tabs
	r.timers = make(map[uint64]*time.Timer)
	r.tabs = make(map[uint64]tab)
	r.mu.Unlock()

	for _, timer := range timers {
		timer.Stop()
	}

	var errs []error
	for _, t := range tabs {
		if err := r.releaseWithRetry(ctx, t); err != nil {
			r.logger.Error("failed to release tab", "tab", t.name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) releaseWithRetry(ctx context.Context, t tab) error {
	var err error
	for attempt := 1; attempt <= DefaultReleaseAttempts; attempt++ {
		if err = t.release(); err == nil {
			return nil
		}
		r.logger.Debug("tab release attempt failed", "tab", t.name, "attempt", attempt, "error", err)
		if attempt == DefaultReleaseAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("release %s: %w", t.name, ctx.Err())
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return fmt.Errorf("release %s after %d attempts: %w", t.name, DefaultReleaseAttempts, err)
}
