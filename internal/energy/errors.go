package energy

import (
	"errors"
	"fmt"
)

// ErrMissingCredential is the only fatal precondition: an EIA-backed source
// is configured but no API key was supplied.
var ErrMissingCredential = errors.New("EIA_API_KEY is not set")

// TransportError reports a network failure or non-success HTTP status from an
// upstream API. It is non-fatal: the affected window is treated as empty.
type TransportError struct {
	Source string
	Entity string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: fetch for %s returned status %d", e.Source, e.Entity, e.Status)
	}
	return fmt.Sprintf("%s: fetch for %s failed: %v", e.Source, e.Entity, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a response body missing the expected envelope structure.
// Non-fatal: the affected window is treated as empty.
type ParseError struct {
	Source string
	Entity string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unexpected response structure for %s: %v", e.Source, e.Entity, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError reports a transaction-level failure while committing a raw
// batch. Per-record validation failures are skipped without raising this.
type StorageError struct {
	Dataset string
	Entity  string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s/%s: %v", e.Dataset, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// AggregationError reports a failed derived-table recomputation. The derived
// transaction is rolled back; committed raw records are unaffected.
type AggregationError struct {
	Dataset string
	Entity  string
	Err     error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s/%s: %v", e.Dataset, e.Entity, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
