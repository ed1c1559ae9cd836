package usagecode

import "errors"

var (
	// ErrExhaustedCodeSpace is returned when the attempt budget is spent
	// without finding a collision-free code. This is a configuration
	// problem (code space too small for the live partner count), not a
	// condition to retry.
	ErrExhaustedCodeSpace = errors.New("exhausted usage code space")

	// ErrNoLiveCode is returned when a partner has no live code
	ErrNoLiveCode = errors.New("no live usage code for partner")

	ErrInternal = errors.New("internal error")
)
