package domain

import "context"

// EventFilter restricts Find results. Zero values mean "no constraint";
// FromID/ToID are inclusive bounds on the source-assigned event id.
type EventFilter struct {
	Type    EventType
	Name    string
	TokenID string
	Status  ProcessingStatus
	FromID  int64
	ToID    int64
	Limit   int
	Offset  int
}

// EventStats is the aggregate view over stored events.
type EventStats struct {
	Total    int64                      `json:"total"`
	ByType   map[EventType]int64        `json:"by_type"`
	ByStatus map[ProcessingStatus]int64 `json:"by_status"`
}

// EventRepository is the durable, idempotent persistence and query layer for
// tokenization events.
type EventRepository interface {
	// Insert upserts a single event keyed by unique_id. On conflict only the
	// payload and finalized flag are updated; the current row is returned.
	Insert(ctx context.Context, event RawEvent) (*StoredRecord, error)

	// InsertBatch inserts events in one all-or-nothing transaction. Events
	// whose unique_id already exists are silently skipped, not updated. The
	// returned count covers only rows newly created.
	InsertBatch(ctx context.Context, events []RawEvent) (int, error)

	// Find returns stored events matching the filter, ordered by event id
	// descending.
	Find(ctx context.Context, filter EventFilter) ([]StoredRecord, error)

	// FindByUniqueID returns the event with the given dedup key, or nil if
	// none exists.
	FindByUniqueID(ctx context.Context, uniqueID string) (*StoredRecord, error)

	// MarkProcessed transitions an event to its terminal success status.
	MarkProcessed(ctx context.Context, eventID int64) error

	// MarkFailed records a dispatch failure: the error message is captured,
	// retry_count is incremented, and the row remains eligible for retry.
	MarkFailed(ctx context.Context, eventID int64, message string) error

	// Stats returns total, per-type, and per-status counts.
	Stats(ctx context.Context) (*EventStats, error)
}

// CursorRepository persists the singleton ingestion progress cursor.
type CursorRepository interface {
	// LastAcknowledgedID returns the current cursor value, zero if unset.
	LastAcknowledgedID(ctx context.Context) (int64, error)

	// UpdateLastAcknowledgedID advances the cursor, clamped to
	// max(current, id), and stamps acknowledged_at on all not-yet-acknowledged
	// rows with event_id <= id.
	UpdateLastAcknowledgedID(ctx context.Context, id int64) error

	// ResetLastAcknowledgedID sets the cursor to id unconditionally. Used by
	// operator-driven replay only.
	ResetLastAcknowledgedID(ctx context.Context, id int64) error
}

// PollRequest parameterizes one call to the upstream poll endpoint.
type PollRequest struct {
	AfterID       int64
	Limit         int
	EventTypes    []EventType
	FinalizedOnly bool
}

// PollResponse is the upstream's answer to a poll: events ascending by id,
// the id to acknowledge once the batch is durable, and whether backlog
// remains.
type PollResponse struct {
	Events        []RawEvent `json:"events"`
	LastID        int64      `json:"lastId"`
	HasMoreEvents bool       `json:"hasMoreEvents"`
}

// UpstreamClient is the transport to the external poll-style event API.
type UpstreamClient interface {
	Poll(ctx context.Context, req PollRequest) (*PollResponse, error)

	// Acknowledge informs the upstream that events at or below lastID have
	// been consumed and must not be redelivered.
	Acknowledge(ctx context.Context, lastID int64) error

	// Reset rewinds the upstream delivery position to eventID for replay.
	Reset(ctx context.Context, eventID int64) error
}

// DedupCache is a best-effort cache of recently seen unique ids, used to skip
// upserts for events known to be stored already. Implementations must degrade
// to "not seen" on any backend failure; correctness always rests on the
// store's unique index.
type DedupCache interface {
	Seen(ctx context.Context, uniqueID string) bool
	Remember(ctx context.Context, uniqueIDs ...string)
}
