package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleEpoch marks a page result or error that belongs to a cache
	// generation that has since been reset. It is discarded.
	ErrStaleEpoch = errors.New("grid: result from a previous epoch")
	// ErrDuplicatePage marks a result for a page that is already cached.
	ErrDuplicatePage = errors.New("grid: page already cached")
	// ErrOutOfOrder marks a result for a page other than the one in flight.
	ErrOutOfOrder = errors.New("grid: page delivered out of order")
	// ErrMeasurementUnavailable is returned when a row size cannot be used;
	// the row keeps its estimate.
	ErrMeasurementUnavailable = errors.New("grid: row measurement unavailable")
	// ErrUnknownColumn is returned for a sort toggle on a column the grid does not have.
	ErrUnknownColumn = errors.New("grid: unknown column")
	// ErrNotSortable is returned for a sort toggle on a column that cannot be sorted.
	ErrNotSortable = errors.New("grid: column is not sortable")
)

// FetchError wraps a failed page request. It is recoverable: the cache is left
// as it was and the next prefetch signal retries the same index.
type FetchError struct {
	Index int
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Index, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// InconsistentTotalCountError reports that the remote side shrank its total
// below what was already cached. The cache has been truncated to Reported.
type InconsistentTotalCountError struct {
	Cached   int
	Reported int
}

func (e *InconsistentTotalCountError) Error() string {
	return fmt.Sprintf("remote total %d is below %d cached items; cache truncated", e.Reported, e.Cached)
}

// SortParseError reports a malformed sort expression.
type SortParseError struct {
	Input string
}

func (e *SortParseError) Error() string {
	return fmt.Sprintf("invalid sort key %q (want column or column:asc|desc)", e.Input)
}
