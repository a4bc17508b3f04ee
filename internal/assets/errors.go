package assets

import "errors"

// ErrFetchFailed is returned when an asset could not be downloaded.
var ErrFetchFailed = errors.New("asset fetch failed")
