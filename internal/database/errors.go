package database

import "errors"

// ErrCacheNotFound is returned by Open when the cache must already exist
// but does not.
var ErrCacheNotFound = errors.New("cache not found")
