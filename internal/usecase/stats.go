package usecase

import (
	"context"

	"github.com/user/name-indexer/internal/domain"
)

// RunReporter reports whether the poll loop is currently running.
type RunReporter interface {
	IsRunning() bool
}

// IndexerStatus is the health view exposed to operators.
type IndexerStatus struct {
	Running            bool  `json:"running"`
	LastAcknowledgedID int64 `json:"last_acknowledged_id"`
}

// StatsAggregator is the read-only observability facade. It owns no storage;
// everything is delegated to the event store, cursor manager, and poller.
type StatsAggregator struct {
	events domain.EventRepository
	cursor *CursorManager
	runner RunReporter
}

// NewStatsAggregator creates a new StatsAggregator.
func NewStatsAggregator(events domain.EventRepository, cursor *CursorManager, runner RunReporter) *StatsAggregator {
	return &StatsAggregator{events: events, cursor: cursor, runner: runner}
}

// Stats returns aggregate event counts.
func (s *StatsAggregator) Stats(ctx context.Context) (*domain.EventStats, error) {
	return s.events.Stats(ctx)
}

// Status returns the poller run state and the current cursor position.
func (s *StatsAggregator) Status(ctx context.Context) (*IndexerStatus, error) {
	lastID, err := s.cursor.Last(ctx)
	if err != nil {
		return nil, err
	}
	return &IndexerStatus{
		Running:            s.runner.IsRunning(),
		LastAcknowledgedID: lastID,
	}, nil
}
