package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrEntityNotFound     = errors.New("entity not found")
	ErrDuplicateEntity    = errors.New("entity already registered")
)
