package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncInFlight is returned when a round is requested while another is
	// still running. The caller should retry after the current round ends.
	ErrSyncInFlight = errors.New("a sync round is already in progress")

	// ErrNoEndpoint is returned when no remote base URL is configured.
	ErrNoEndpoint = errors.New("no sync endpoint configured")
)

// TransportError reports a failed push or pull network call. The round is
// aborted with the outbox and watermark left exactly as they were.
type TransportError struct {
	Op     string // "push" or "pull"
	Status int    // HTTP status, 0 when the request itself failed
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sync %s failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("sync %s failed: status %d", e.Op, e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
