package rolloff

import "errors"

// Sentinel kinds for rolloff errors.
var (
	ErrTooFewEntrants   = errors.New("contest needs at least two entrants")
	ErrOwnerUnreachable = errors.New("owner unreachable")
	ErrOwnerRejected    = errors.New("owner rejected the draw request")
	ErrDuplicateSolicit = errors.New("solicitation already pending")
	ErrNoWinner         = errors.New("bracket produced no winner")
)
