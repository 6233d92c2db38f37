package chapterpipe

import "errors"

// Only these abort an import. Decoding trouble and missing structure are
// absorbed into a degraded batch instead.
var (
	ErrMissingInput  = errors.New("no file provided")
	ErrEmptyDocument = errors.New("file is empty or unreadable")
	ErrTooLarge      = errors.New("file too large")
)
