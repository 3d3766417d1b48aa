package model

import "errors"

// Sentinel errors shared across the orchestration engine, checked with
// errors.Is rather than pulling in an error-wrapping library.
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrSameFormatTarget = errors.New("conversion target matches source format")
	ErrNoOperations     = errors.New("no operations requested")
	ErrTooManyOperations = errors.New("too many operations requested")
	ErrUnsupportedMedia = errors.New("unsupported source media type")
	ErrFileTooLarge     = errors.New("uploaded file exceeds maximum size")
)
