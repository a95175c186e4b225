package storage

import "errors"

var (
	// ErrNotFound means no record exists for the key, e.g. an account with no
	// saved watch progress yet.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidInput rejects nil records, empty addresses and bad limits
	// before they reach a backend.
	ErrInvalidInput = errors.New("storage: invalid input")
)
