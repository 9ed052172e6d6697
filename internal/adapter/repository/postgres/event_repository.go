package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/user/name-indexer/internal/domain"
)

const (
	eventsTable = "name_token_events"
	cursorTable = "ingestion_cursor"

	// Batches at or above this size go through COPY into a temp table
	// instead of row-by-row inserts.
	copyThreshold = 64

	defaultFindLimit = 100
)

// eventColumns is the insert column list, in the order used by every insert
// path and by scanRecord.
var eventColumns = []string{
	"event_id", "unique_id", "event_type", "name", "token_id", "network_id",
	"chain_id", "finalized", "tx_hash", "block_number", "log_index",
	"correlation_id", "relay_id", "payload",
}

const selectColumns = `event_id, unique_id, event_type, name, token_id, network_id,
	finalized, tx_hash, block_number, log_index, correlation_id, relay_id, payload,
	created_at, processed_at, acknowledged_at, processing_status, error_message, retry_count`

// EventRepository implements domain.EventRepository and
// domain.CursorRepository on PostgreSQL. Idempotency rests on the unique_id
// primary key; batch inserts are one all-or-nothing transaction.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger.With("component", "postgres_repository")}
}

// EnsureSchema creates the event and cursor tables if they do not exist and
// seeds the singleton cursor row.
func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + eventsTable + ` (
			event_id BIGINT NOT NULL,
			unique_id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			name TEXT NOT NULL,
			token_id TEXT NOT NULL DEFAULT '',
			network_id TEXT NOT NULL DEFAULT '',
			chain_id BIGINT,
			finalized BOOLEAN NOT NULL DEFAULT FALSE,
			tx_hash TEXT NOT NULL DEFAULT '',
			block_number BIGINT NOT NULL DEFAULT 0,
			log_index INT NOT NULL DEFAULT 0,
			correlation_id TEXT NOT NULL DEFAULT '',
			relay_id TEXT NOT NULL DEFAULT '',
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ,
			acknowledged_at TIMESTAMPTZ,
			processing_status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT NOT NULL DEFAULT '',
			retry_count INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + eventsTable + `_event_id ON ` + eventsTable + ` (event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + eventsTable + `_type ON ` + eventsTable + ` (event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_` + eventsTable + `_name ON ` + eventsTable + ` (name)`,
		`CREATE INDEX IF NOT EXISTS idx_` + eventsTable + `_status ON ` + eventsTable + ` (processing_status)`,
		`CREATE TABLE IF NOT EXISTS ` + cursorTable + ` (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			last_acknowledged_id BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`INSERT INTO ` + cursorTable + ` (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// insertArgs renders the event into the eventColumns order. The derived
// chain id is computed here so the invariant lives in exactly one place.
func insertArgs(event domain.RawEvent) []any {
	var chainID sql.NullInt64
	if id, ok := domain.ChainID(event.NetworkID); ok {
		chainID = sql.NullInt64{Int64: id, Valid: true}
	}
	var payload any
	if len(event.Payload) > 0 {
		payload = []byte(event.Payload)
	}
	return []any{
		event.ID, event.UniqueID, string(event.Type), event.Name, event.TokenID,
		event.NetworkID, chainID, event.Finalized, event.TxHash,
		event.BlockNumber, event.LogIndex, event.CorrelationID, event.RelayID,
		payload,
	}
}

// buildUpsertQuery renders the single-event upsert. Only the mutable
// projection fields are touched on conflict; a redelivery can never rewrite
// the immutable identity of a stored event.
func buildUpsertQuery() string {
	placeholders := make([]string, len(eventColumns))
	for i := range eventColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return `INSERT INTO ` + eventsTable + ` (` + strings.Join(eventColumns, ", ") + `)
		VALUES (` + strings.Join(placeholders, ", ") + `)
		ON CONFLICT (unique_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			finalized = EXCLUDED.finalized
		RETURNING ` + selectColumns
}

// Insert upserts a single event by unique_id. On conflict only the mutable
// projection fields (payload, finalized) are updated; everything else keeps
// the first delivery's values. Returns the row as currently stored.
func (r *EventRepository) Insert(ctx context.Context, event domain.RawEvent) (*domain.StoredRecord, error) {
	row := r.db.QueryRowContext(ctx, buildUpsertQuery(), insertArgs(event)...)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("upsert event %s: %w", event.UniqueID, err)
	}
	return rec, nil
}

// InsertBatch persists events in one transaction with insert-or-skip
// semantics: a unique_id already present (in the table or earlier in the same
// batch) is silently skipped, never updated. Returns the number of rows newly
// created. Any failure rolls the whole batch back.
func (r *EventRepository) InsertBatch(ctx context.Context, events []domain.RawEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch transaction: %w", err)
	}
	defer txn.Rollback() // no-op once Commit succeeds

	var inserted int64
	if len(events) >= copyThreshold {
		inserted, err = r.copyBatch(ctx, txn, events)
	} else {
		inserted, err = r.execBatch(ctx, txn, events)
	}
	if err != nil {
		return 0, err
	}

	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return int(inserted), nil
}

// buildBatchInsertQuery renders the per-row batch insert. Unlike the single
// upsert, a duplicate unique_id is skipped outright, so two occurrences in
// one batch leave exactly one row and count once.
func buildBatchInsertQuery() string {
	placeholders := make([]string, len(eventColumns))
	for i := range eventColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return `INSERT INTO ` + eventsTable + ` (` + strings.Join(eventColumns, ", ") + `)
		VALUES (` + strings.Join(placeholders, ", ") + `)
		ON CONFLICT (unique_id) DO NOTHING`
}

// buildMergeQuery renders the staging-table merge used after COPY, with the
// same skip-on-duplicate semantics as the per-row path.
func buildMergeQuery(tempTable string) string {
	cols := strings.Join(eventColumns, ", ")
	return `INSERT INTO ` + eventsTable + ` (` + cols + `)
		SELECT ` + cols + ` FROM ` + tempTable + `
		ON CONFLICT (unique_id) DO NOTHING`
}

// execBatch inserts row by row inside the transaction. Suited to the common
// small poll batch.
func (r *EventRepository) execBatch(ctx context.Context, txn *sql.Tx, events []domain.RawEvent) (int64, error) {
	stmt, err := txn.PrepareContext(ctx, buildBatchInsertQuery())
	if err != nil {
		return 0, fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, event := range events {
		res, err := stmt.ExecContext(ctx, insertArgs(event)...)
		if err != nil {
			return 0, fmt.Errorf("insert event %s: %w", event.UniqueID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected for %s: %w", event.UniqueID, err)
		}
		inserted += n
	}
	return inserted, nil
}

// copyBatch stages large batches through COPY into a temp table, then merges
// with ON CONFLICT DO NOTHING. The temp table drops with the transaction.
func (r *EventRepository) copyBatch(ctx context.Context, txn *sql.Tx, events []domain.RawEvent) (int64, error) {
	tempTable := eventsTable + "_import"
	_, err := txn.ExecContext(ctx,
		`CREATE TEMP TABLE `+tempTable+` (LIKE `+eventsTable+` INCLUDING DEFAULTS) ON COMMIT DROP`)
	if err != nil {
		return 0, fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(tempTable, eventColumns...))
	if err != nil {
		return 0, fmt.Errorf("prepare copy: %w", err)
	}
	for _, event := range events {
		if _, err := stmt.ExecContext(ctx, insertArgs(event)...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("copy event %s: %w", event.UniqueID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return 0, fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("close copy: %w", err)
	}

	res, err := txn.ExecContext(ctx, buildMergeQuery(tempTable))
	if err != nil {
		return 0, fmt.Errorf("merge staging table: %w", err)
	}
	return res.RowsAffected()
}

// buildFindQuery renders the filter into SQL and its argument list.
func buildFindQuery(filter domain.EventFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Type != "" {
		add("event_type = $%d", string(filter.Type))
	}
	if filter.Name != "" {
		add("name = $%d", filter.Name)
	}
	if filter.TokenID != "" {
		add("token_id = $%d", filter.TokenID)
	}
	if filter.Status != "" {
		add("processing_status = $%d", string(filter.Status))
	}
	if filter.FromID != 0 {
		add("event_id >= $%d", filter.FromID)
	}
	if filter.ToID != 0 {
		add("event_id <= $%d", filter.ToID)
	}

	query := `SELECT ` + selectColumns + ` FROM ` + eventsTable
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultFindLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY event_id DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	return query, args
}

// Find returns stored events matching the filter, newest first.
func (r *EventRepository) Find(ctx context.Context, filter domain.EventFilter) ([]domain.StoredRecord, error) {
	query, args := buildFindQuery(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []domain.StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return records, nil
}

// FindByUniqueID returns one event by dedup key, or nil when absent.
func (r *EventRepository) FindByUniqueID(ctx context.Context, uniqueID string) (*domain.StoredRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM `+eventsTable+` WHERE unique_id = $1`, uniqueID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event %s: %w", uniqueID, err)
	}
	return rec, nil
}

// MarkProcessed transitions the event to its terminal success status.
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE `+eventsTable+` SET
			processing_status = $1,
			processed_at = NOW()
		WHERE event_id = $2`,
		string(domain.StatusProcessed), eventID)
	if err != nil {
		return fmt.Errorf("mark event %d processed: %w", eventID, err)
	}
	return nil
}

// MarkFailed records a dispatch failure and increments retry_count. The row
// stays in the table, eligible for the retry sweep; nothing is ever deleted.
func (r *EventRepository) MarkFailed(ctx context.Context, eventID int64, message string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE `+eventsTable+` SET
			processing_status = $1,
			error_message = $2,
			retry_count = retry_count + 1
		WHERE event_id = $3`,
		string(domain.StatusFailed), message, eventID)
	if err != nil {
		return fmt.Errorf("mark event %d failed: %w", eventID, err)
	}
	return nil
}

// Stats returns total, per-type, and per-status counts.
func (r *EventRepository) Stats(ctx context.Context) (*domain.EventStats, error) {
	stats := &domain.EventStats{
		ByType:   map[domain.EventType]int64{},
		ByStatus: map[domain.ProcessingStatus]int64{},
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM `+eventsTable+` GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("query type counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var count int64
		if err := rows.Scan(&t, &count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		stats.ByType[domain.EventType(t)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate type counts: %w", err)
	}

	statusRows, err := r.db.QueryContext(ctx,
		`SELECT processing_status, COUNT(*) FROM `+eventsTable+` GROUP BY processing_status`)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var s string
		var count int64
		if err := statusRows.Scan(&s, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[domain.ProcessingStatus(s)] = count
	}
	if err := statusRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return stats, nil
}

// LastAcknowledgedID returns the singleton cursor value.
func (r *EventRepository) LastAcknowledgedID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_acknowledged_id FROM `+cursorTable+` WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	return id, nil
}

// UpdateLastAcknowledgedID advances the cursor, clamped via GREATEST so
// concurrent writers can never move it backwards, and stamps acknowledged_at
// on every not-yet-acknowledged row at or below id. Both writes share one
// transaction.
func (r *EventRepository) UpdateLastAcknowledgedID(ctx context.Context, id int64) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cursor transaction: %w", err)
	}
	defer txn.Rollback()

	_, err = txn.ExecContext(ctx, `UPDATE `+cursorTable+` SET
			last_acknowledged_id = GREATEST(last_acknowledged_id, $1),
			updated_at = NOW()
		WHERE id = 1`, id)
	if err != nil {
		return fmt.Errorf("advance cursor to %d: %w", id, err)
	}

	_, err = txn.ExecContext(ctx, `UPDATE `+eventsTable+` SET
			acknowledged_at = NOW()
		WHERE event_id <= $1 AND acknowledged_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("stamp acknowledged rows up to %d: %w", id, err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit cursor update: %w", err)
	}
	return nil
}

// ResetLastAcknowledgedID sets the cursor unconditionally. Operator replay
// path only; the clamp is deliberately bypassed.
func (r *EventRepository) ResetLastAcknowledgedID(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE `+cursorTable+` SET
			last_acknowledged_id = $1,
			updated_at = NOW()
		WHERE id = 1`, id)
	if err != nil {
		return fmt.Errorf("reset cursor to %d: %w", id, err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.StoredRecord, error) {
	var rec domain.StoredRecord
	var eventType, status string
	var payload []byte
	var processedAt, acknowledgedAt sql.NullTime

	err := s.Scan(
		&rec.ID, &rec.UniqueID, &eventType, &rec.Name, &rec.TokenID,
		&rec.NetworkID, &rec.Finalized, &rec.TxHash, &rec.BlockNumber,
		&rec.LogIndex, &rec.CorrelationID, &rec.RelayID, &payload,
		&rec.CreatedAt, &processedAt, &acknowledgedAt, &status,
		&rec.ErrorMessage, &rec.RetryCount,
	)
	if err != nil {
		return nil, err
	}

	rec.Type = domain.EventType(eventType)
	rec.Status = domain.ProcessingStatus(status)
	if len(payload) > 0 {
		rec.Payload = payload
	}
	if processedAt.Valid {
		rec.ProcessedAt = &processedAt.Time
	}
	if acknowledgedAt.Valid {
		rec.AcknowledgedAt = &acknowledgedAt.Time
	}
	return &rec, nil
}
