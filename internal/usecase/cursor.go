package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/name-indexer/internal/domain"
)

// CursorManager is the single source of truth for ingestion progress. It
// coordinates the durable local cursor with the upstream delivery position:
// the upstream is told first, and the local cursor only advances once the
// upstream has accepted the acknowledgment.
type CursorManager struct {
	cursors  domain.CursorRepository
	upstream domain.UpstreamClient
	logger   *slog.Logger
}

// NewCursorManager creates a new CursorManager.
func NewCursorManager(cursors domain.CursorRepository, upstream domain.UpstreamClient, logger *slog.Logger) *CursorManager {
	return &CursorManager{
		cursors:  cursors,
		upstream: upstream,
		logger:   logger.With("component", "cursor_manager"),
	}
}

// Last returns the current local cursor value.
func (c *CursorManager) Last(ctx context.Context) (int64, error) {
	return c.cursors.LastAcknowledgedID(ctx)
}

// Acknowledge commits ingestion progress up to lastID. It must only be called
// after the batch covering lastID has been durably persisted. The upstream is
// acknowledged first; if that fails the local cursor is left untouched so the
// events are redelivered rather than silently stranded upstream.
func (c *CursorManager) Acknowledge(ctx context.Context, lastID int64) error {
	if err := c.upstream.Acknowledge(ctx, lastID); err != nil {
		return &domain.AckError{LastID: lastID, Err: err}
	}

	if err := c.cursors.UpdateLastAcknowledgedID(ctx, lastID); err != nil {
		// The upstream already accepted the ack, so these events will not be
		// redelivered. Surface loudly; on restart the poll resumes from the
		// stale local cursor and the idempotent store absorbs the overlap.
		c.logger.Error("upstream acknowledged but local cursor update failed",
			"last_id", lastID, "error", err)
		return fmt.Errorf("update local cursor to %d: %w", lastID, err)
	}

	c.logger.Debug("acknowledged events", "last_id", lastID)
	return nil
}

// Reset rewinds both the upstream delivery position and the local cursor to
// eventID so that events after it are redelivered. Operator-invoked only;
// unlike Acknowledge the local update is not clamped.
func (c *CursorManager) Reset(ctx context.Context, eventID int64) error {
	if err := c.upstream.Reset(ctx, eventID); err != nil {
		return fmt.Errorf("reset upstream position to %d: %w", eventID, err)
	}

	if err := c.cursors.ResetLastAcknowledgedID(ctx, eventID); err != nil {
		return fmt.Errorf("reset local cursor to %d: %w", eventID, err)
	}

	c.logger.Info("cursor reset", "event_id", eventID)
	return nil
}
