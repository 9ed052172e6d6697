package domain

import "fmt"

// The error wrappers below classify poll-cycle failures for logging and
// metrics. All support errors.As and unwrap to the underlying cause.

// TransportError marks a network or timeout failure reaching the upstream
// API. The cycle aborts with no state change and retries at the next tick.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("upstream %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError marks a batch-insert transaction failure. The batch rolled
// back entirely; the cursor is untouched, so the events will be redelivered.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist batch: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// HandlerError marks a single event's dispatch failure. It is isolated: it
// neither rolls back persistence nor blocks the rest of the batch.
type HandlerError struct {
	Type     EventType
	UniqueID string
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s event %s: %v", e.Type, e.UniqueID, e.Err)
}
func (e *HandlerError) Unwrap() error { return e.Err }

// AckError marks an upstream acknowledgment failure after successful local
// persistence. The local cursor must not advance; the same events are
// re-fetched and re-processed next cycle, which idempotent storage makes safe.
type AckError struct {
	LastID int64
	Err    error
}

func (e *AckError) Error() string { return fmt.Sprintf("acknowledge up to %d: %v", e.LastID, e.Err) }
func (e *AckError) Unwrap() error { return e.Err }
