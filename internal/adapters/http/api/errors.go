package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrMissingEntityID = errors.New("missing entity id")
)
