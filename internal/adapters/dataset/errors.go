package dataset

import "errors"

// Sentinel kinds for dataset errors. A missing file, a missing column and a
// malformed row are distinct failures; ErrWriteFailed covers saving.
var (
	ErrFileNotFound  = errors.New("dataset file not found")
	ErrMissingColumn = errors.New("required column missing")
	ErrMalformedRow  = errors.New("malformed row")
	ErrWriteFailed   = errors.New("dataset write failed")
)
