package crawler

import "errors"

// Render failures. Renderers wrap one of them so the scheduler can retry
// either kind the same way and report the cause.
var (
	// ErrPageLoadTimeout is returned when a page did not finish loading
	// within the load timeout.
	ErrPageLoadTimeout = errors.New("page load timeout")

	// ErrRenderError is returned for any other render failure.
	ErrRenderError = errors.New("render error")
)

// ErrAlreadyStarted is returned by Scheduler.Run when called twice.
var ErrAlreadyStarted = errors.New("scheduler already started")
