package session

import "errors"

var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("a session is already running")

	// ErrNothingToStop is returned by Stop when no session is active.
	ErrNothingToStop = errors.New("nothing to stop")

	// ErrNoSession is returned by Wait when no session was ever started.
	ErrNoSession = errors.New("no session")

	// ErrForeignCache is returned by Start when the cache holds pages of
	// another origin.
	ErrForeignCache = errors.New("the cache holds pages of another origin")

	// ErrPanic marks a session that ended because of a panic.
	ErrPanic = errors.New("session panicked")
)
