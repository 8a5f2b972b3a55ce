package query

import "errors"

var (
	// ErrInvalid marks a structurally or semantically malformed query.
	ErrInvalid = errors.New("invalid structured query")

	// ErrNotImplemented marks a recognised query feature the service does
	// not support (limit and offset).
	ErrNotImplemented = errors.New("not implemented")
)
