package domain

import "errors"

var (
	// ErrInvalidConfig reports a configuration the engine refuses to run with.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidArgument reports a bad per-call argument such as a negative k.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned by document stores for unknown IDs.
	ErrNotFound = errors.New("document not found")
)
