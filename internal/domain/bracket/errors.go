package bracket

import "errors"

// Sentinel kinds for bracket errors.
var (
	ErrTooFewEntrants  = errors.New("bracket needs at least two entrants")
	ErrUnknownMatch    = errors.New("unknown match")
	ErrMatchNotReady   = errors.New("match is missing an entrant")
	ErrAlreadyResolved = errors.New("match already resolved")
	ErrNotEntrant      = errors.New("winner is not an entrant")
)
