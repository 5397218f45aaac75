package catalog

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition indicates a caller requested a status move the
// transition table forbids. This is a caller bug and must not be swallowed.
var ErrIllegalTransition = errors.New("illegal status transition")

// ErrConcurrencyConflict indicates a compare-and-swap status update lost a
// race: the row's status no longer matched the expected value.
var ErrConcurrencyConflict = errors.New("concurrent status update conflict")

// ErrNotFound indicates a row lookup matched nothing.
var ErrNotFound = errors.New("not found")

func illegalTransition(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
