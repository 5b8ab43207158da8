package crawl

import (
	"context"
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when a run is triggered while another one is
// still active. The trigger is rejected, never queued.
var ErrRunInProgress = errors.New("crawl run already in progress")

// ErrInvalidMode is returned for a run mode other than incremental or full.
var ErrInvalidMode = errors.New("mode must be incremental or full")

// FetchError reports a listing page that could not be fetched or extracted.
// It aborts the run before the store or ledger is touched.
type FetchError struct {
	URL  string
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed on page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failure writing the store or the ledger.
type PersistenceError struct {
	Op   string // "save store" or "save ledger"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrorKind names the class of a run failure for status reporting.
func ErrorKind(err error) string {
	var fetchErr *FetchError
	var persistErr *PersistenceError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRunInProgress):
		return "concurrent_run_rejected"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &fetchErr):
		return "fetch_failure"
	case errors.As(err, &persistErr):
		return "persistence_failure"
	default:
		return "run_failure"
	}
}
