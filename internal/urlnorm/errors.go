package urlnorm

import "errors"

// ErrInvalidURL is returned when a link cannot be resolved into an absolute
// http or https URL. Callers drop such links.
var ErrInvalidURL = errors.New("invalid url")
