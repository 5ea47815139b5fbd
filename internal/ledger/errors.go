package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingUser is returned when finalize is called without an authenticated user.
	ErrMissingUser = errors.New("missing user id")
	// ErrNoCandidates is returned when the candidate list is absent.
	ErrNoCandidates = errors.New("no transactions provided or invalid format")
	// ErrUnknownPeriod is returned when no statement period was supplied and no
	// fallback year is configured.
	ErrUnknownPeriod = errors.New("statement period unknown")
)

// ValidationError describes a candidate row that could not be turned into a
// transaction. One ValidationError rejects the whole batch.
type ValidationError struct {
	Row   int // zero-based index in the submitted batch, -1 for the statement period
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d: invalid %s %q: %v", e.Row, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("row %d: invalid %s %q", e.Row, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
