package portal

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned before any browser is launched when
	// either credential value is empty.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrEmptyCategory means no data row rendered within the table timeout. It
	// is a valid empty result, not a failure.
	ErrEmptyCategory = errors.New("category has no records")
	// ErrNothingExtracted is returned by a run in which no category yielded a
	// single record.
	ErrNothingExtracted = errors.New("nothing extracted")
	// ErrWaitTimeout is returned by Waiter.Await once the budget is spent.
	ErrWaitTimeout = errors.New("wait timed out")
)

type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "authentication failed: " + e.Reason
	}
	return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// CategoryUnavailableError is returned when a category's tab cannot be found,
// clicked or confirmed active.
type CategoryUnavailableError struct {
	Category string
	Err      error
}

func (e *CategoryUnavailableError) Error() string {
	return fmt.Sprintf("category %q unavailable: %v", e.Category, e.Err)
}

func (e *CategoryUnavailableError) Unwrap() error {
	return e.Err
}

// PaginationStuckError aborts the remaining pages of a category. Page is the
// last page that was read successfully.
type PaginationStuckError struct {
	Category string
	Page     int
	Err      error
}

func (e *PaginationStuckError) Error() string {
	return fmt.Sprintf("pagination of %q stuck after page %d: %v", e.Category, e.Page, e.Err)
}

func (e *PaginationStuckError) Unwrap() error {
	return e.Err
}

var errPageLimit = errors.New("page limit reached")
