package draw

import "errors"

// Sentinel kinds for draw errors.
var (
	ErrInvalidFaces = errors.New("die must have at least two faces")
)
