package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNoPendingTies = errors.New("no detected ties awaiting a start")
)
