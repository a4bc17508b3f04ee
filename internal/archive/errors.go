package archive

import "errors"

var (
	// ErrEmptyCache is returned when there is nothing to export.
	ErrEmptyCache = errors.New("no cached files to export")

	// ErrDeliveryError is returned when a sink failed to accept an
	// archive.
	ErrDeliveryError = errors.New("archive delivery failed")
)
