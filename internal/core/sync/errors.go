package sync

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by engine methods after Close.
var ErrClosed = errors.New("sync: engine closed")

// PartialFailureError reports that some records in a batch failed for reasons
// other than conflicts. The whole resync is aborted rather than silently
// dropping records.
type PartialFailureError struct {
	Count int
	First error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d record(s) failed to sync: %v", e.Count, e.First)
}

func (e *PartialFailureError) Unwrap() error { return e.First }
