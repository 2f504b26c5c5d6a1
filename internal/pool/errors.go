package pool

import "errors"

var (
	// ErrPoolFull means the pool is at capacity and the candidate was dropped.
	ErrPoolFull = errors.New("transaction pool is full")

	// ErrAlreadyPresent means a transaction with the same uniqueness tag is
	// already queued.
	ErrAlreadyPresent = errors.New("transaction already present")
)
