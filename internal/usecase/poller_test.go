package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/user/name-indexer/internal/domain"
	"github.com/user/name-indexer/internal/domain/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(id int64, uniqueID string, t domain.EventType) domain.RawEvent {
	return domain.RawEvent{
		ID:        id,
		UniqueID:  uniqueID,
		Type:      t,
		Name:      "example.core",
		TokenID:   "42",
		NetworkID: "eip155:1",
		Finalized: true,
		Payload:   json.RawMessage(`{}`),
	}
}

func newTestPoller(upstream *mocks.MockUpstreamClient, repo *mocks.MockEventRepository, dedup domain.DedupCache, cfg PollerConfig) (*Poller, *EventProcessor) {
	logger := testLogger()
	processor := NewEventProcessor(logger, nil)
	cursor := NewCursorManager(repo, upstream, logger)
	return NewPoller(upstream, repo, cursor, processor, dedup, logger, nil, cfg), processor
}

func TestPoller_CycleOrdering(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	upstream := &mocks.MockUpstreamClient{
		PollResponses: []*domain.PollResponse{{
			Events: []domain.RawEvent{
				testEvent(1, "u-1", domain.EventNameTokenMinted),
				testEvent(2, "u-2", domain.EventNameTokenTransferred),
			},
			LastID: 2,
		}},
	}
	poller, processor := newTestPoller(upstream, repo, nil, PollerConfig{})

	// The handler observes the pipeline mid-dispatch: persistence must have
	// happened already, acknowledgment must not have.
	processor.SubscribeAll(func(ctx context.Context, event domain.RawEvent) error {
		stored, err := repo.FindByUniqueID(ctx, event.UniqueID)
		if err != nil || stored == nil {
			t.Errorf("event %s dispatched before being persisted", event.UniqueID)
		}
		if len(upstream.AckedIDs) != 0 {
			t.Error("acknowledgment happened before dispatch")
		}
		return nil
	})

	poller.cycle(context.Background())

	if repo.StoredCount() != 2 {
		t.Errorf("expected 2 stored events, got %d", repo.StoredCount())
	}
	if len(upstream.AckedIDs) != 1 || upstream.AckedIDs[0] != 2 {
		t.Errorf("expected single ack at id 2, got %v", upstream.AckedIDs)
	}
	if cursor, _ := repo.LastAcknowledgedID(context.Background()); cursor != 2 {
		t.Errorf("expected local cursor at 2, got %d", cursor)
	}
	if len(repo.ProcessedIDs) != 2 {
		t.Errorf("expected both events marked processed, got %v", repo.ProcessedIDs)
	}
}

func TestPoller_EmptyPollIsNoOp(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	upstream := &mocks.MockUpstreamClient{}
	poller, _ := newTestPoller(upstream, repo, nil, PollerConfig{})

	poller.cycle(context.Background())

	if repo.StoredCount() != 0 {
		t.Errorf("expected no stored events, got %d", repo.StoredCount())
	}
	if len(upstream.AckedIDs) != 0 {
		t.Errorf("expected no acks, got %v", upstream.AckedIDs)
	}
}

func TestPoller_TransportErrorAbortsCycle(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	upstream := &mocks.MockUpstreamClient{PollErr: errors.New("connection refused")}
	poller, _ := newTestPoller(upstream, repo, nil, PollerConfig{})

	poller.cycle(context.Background())

	if repo.StoredCount() != 0 {
		t.Errorf("expected no stored events, got %d", repo.StoredCount())
	}
	if len(upstream.AckedIDs) != 0 {
		t.Errorf("expected no acks, got %v", upstream.AckedIDs)
	}
	if cursor, _ := repo.LastAcknowledgedID(context.Background()); cursor != 0 {
		t.Errorf("expected cursor untouched, got %d", cursor)
	}
}

func TestPoller_PersistenceErrorAbortsBeforeDispatch(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	repo.InsertBatchErr = errors.New("deadlock detected")
	upstream := &mocks.MockUpstreamClient{
		PollResponses: []*domain.PollResponse{{
			Events: []domain.RawEvent{testEvent(1, "u-1", domain.EventNameTokenMinted)},
			LastID: 1,
		}},
	}
	poller, processor := newTestPoller(upstream, repo, nil, PollerConfig{})

	dispatched := 0
	processor.SubscribeAll(func(ctx context.Context, event domain.RawEvent) error {
		dispatched++
		return nil
	})

	poller.cycle(context.Background())

	if dispatched != 0 {
		t.Errorf("expected no dispatch after persistence failure, got %d", dispatched)
	}
	if len(upstream.AckedIDs) != 0 {
		t.Errorf("expected no acks, got %v", upstream.AckedIDs)
	}
}

func TestPoller_AckFailureLeavesLocalCursor(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	upstream := &mocks.MockUpstreamClient{
		AckErr: errors.New("503 service unavailable"),
		PollResponses: []*domain.PollResponse{{
			Events: []domain.RawEvent{testEvent(7, "u-7", domain.EventNameTokenRenewed)},
			LastID: 7,
		}},
	}
	poller, _ := newTestPoller(upstream, repo, nil, PollerConfig{})

	poller.cycle(context.Background())

	// Storage keeps the batch (idempotent redelivery is safe) but the local
	// cursor must not advance.
	if repo.StoredCount() != 1 {
		t.Errorf("expected 1 stored event, got %d", repo.StoredCount())
	}
	if cursor, _ := repo.LastAcknowledgedID(context.Background()); cursor != 0 {
		t.Errorf("expected cursor untouched after ack failure, got %d", cursor)
	}
}

func TestPoller_HandlerFailureIsIsolated(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	upstream := &mocks.MockUpstreamClient{
		PollResponses: []*domain.PollResponse{{
			Events: []domain.RawEvent{
				testEvent(1, "u-1", domain.EventNameTokenMinted),
				testEvent(2, "u-2", domain.EventNameTokenMinted),
			},
			LastID: 2,
		}},
	}
	poller, processor := newTestPoller(upstream, repo, nil, PollerConfig{})

	processor.Subscribe(domain.EventNameTokenMinted, func(ctx context.Context, event domain.RawEvent) error {
		if event.UniqueID == "u-1" {
			return errors.New("pool lookup failed")
		}
		return nil
	})

	poller.cycle(context.Background())

	// The batch is still acknowledged despite the individual failure.
	if len(upstream.AckedIDs) != 1 || upstream.AckedIDs[0] != 2 {
		t.Fatalf("expected ack at id 2, got %v", upstream.AckedIDs)
	}
	if len(repo.FailedIDs) != 1 || repo.FailedIDs[0] != 1 {
		t.Errorf("expected event 1 marked failed, got %v", repo.FailedIDs)
	}
	if len(repo.ProcessedIDs) != 1 || repo.ProcessedIDs[0] != 2 {
		t.Errorf("expected event 2 marked processed, got %v", repo.ProcessedIDs)
	}
	rec, _ := repo.FindByUniqueID(context.Background(), "u-1")
	if rec.Status != domain.StatusFailed || rec.RetryCount != 1 {
		t.Errorf("expected failed status with retry_count 1, got %s/%d", rec.Status, rec.RetryCount)
	}
}

func TestPoller_PollsAfterCursor(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	repo.Cursor = 500
	upstream := &mocks.MockUpstreamClient{}
	poller, _ := newTestPoller(upstream, repo, nil, PollerConfig{BatchSize: 25, FinalizedOnly: true})

	poller.cycle(context.Background())

	reqs := upstream.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 poll request, got %d", len(reqs))
	}
	if reqs[0].AfterID != 500 {
		t.Errorf("expected poll after id 500, got %d", reqs[0].AfterID)
	}
	if reqs[0].Limit != 25 || !reqs[0].FinalizedOnly {
		t.Errorf("unexpected request parameters: %+v", reqs[0])
	}
}

func TestPoller_DedupCacheSkipsSeenEvents(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	dedup := mocks.NewMockDedupCache()
	dedup.Remember(context.Background(), "u-1")
	upstream := &mocks.MockUpstreamClient{
		PollResponses: []*domain.PollResponse{{
			Events: []domain.RawEvent{
				testEvent(1, "u-1", domain.EventNameTokenMinted),
				testEvent(2, "u-2", domain.EventNameTokenMinted),
			},
			LastID: 2,
		}},
	}
	poller, _ := newTestPoller(upstream, repo, dedup, PollerConfig{})

	poller.cycle(context.Background())

	// Only the unseen event reaches the store; the batch is still fully
	// dispatched and acknowledged.
	if repo.StoredCount() != 1 {
		t.Errorf("expected 1 stored event, got %d", repo.StoredCount())
	}
	if !dedup.Seen(context.Background(), "u-2") {
		t.Error("expected u-2 to be remembered after insert")
	}
	if len(upstream.AckedIDs) != 1 || upstream.AckedIDs[0] != 2 {
		t.Errorf("expected ack at id 2, got %v", upstream.AckedIDs)
	}
}

func TestPoller_DuplicateWithinBatchStoredOnce(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	upstream := &mocks.MockUpstreamClient{
		PollResponses: []*domain.PollResponse{{
			Events: []domain.RawEvent{
				testEvent(1, "u-1", domain.EventNameTokenMinted),
				testEvent(2, "u-2", domain.EventNameTokenMinted),
				testEvent(1, "u-1", domain.EventNameTokenMinted),
			},
			LastID: 2,
		}},
	}
	poller, _ := newTestPoller(upstream, repo, nil, PollerConfig{})

	poller.cycle(context.Background())

	// The repeated unique_id collapses to one row; the batch still completes
	// and acknowledges normally.
	if repo.StoredCount() != 2 {
		t.Errorf("expected 2 stored events, got %d", repo.StoredCount())
	}
	if len(upstream.AckedIDs) != 1 || upstream.AckedIDs[0] != 2 {
		t.Errorf("expected ack at id 2, got %v", upstream.AckedIDs)
	}
}

func TestPoller_GreedyDrain(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	upstream := &mocks.MockUpstreamClient{
		PollResponses: []*domain.PollResponse{
			{
				Events:        []domain.RawEvent{testEvent(1, "u-1", domain.EventNameTokenMinted)},
				LastID:        1,
				HasMoreEvents: true,
			},
			{
				Events: []domain.RawEvent{testEvent(2, "u-2", domain.EventNameTokenMinted)},
				LastID: 2,
			},
		},
	}
	// Interval far longer than the test: a second poll can only come from the
	// greedy requeue, never from the timer.
	poller, _ := newTestPoller(upstream, repo, nil, PollerConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	start := time.Now()
	deadline := time.After(2 * time.Second)
	for upstream.PollCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("second poll never happened, got %d polls", upstream.PollCount())
		case <-time.After(time.Millisecond):
		}
	}

	if elapsed := time.Since(start); elapsed >= time.Hour {
		t.Fatalf("drain took %v, expected immediate requeue", elapsed)
	}
	if len(upstream.AckedIDs) < 2 {
		t.Errorf("expected both batches acknowledged, got %v", upstream.AckedIDs)
	}
}

func TestPoller_StartIsIdempotent(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	upstream := &mocks.MockUpstreamClient{}
	poller, _ := newTestPoller(upstream, repo, nil, PollerConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx) // no-op
	if !poller.IsRunning() {
		t.Fatal("expected poller to be running")
	}

	poller.Stop()
	if poller.IsRunning() {
		t.Fatal("expected poller to be stopped")
	}
	poller.Stop() // no-op on stopped poller
}

func TestPoller_SweepRetriesFailedEvents(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	upstream := &mocks.MockUpstreamClient{}
	poller, processor := newTestPoller(upstream, repo, nil, PollerConfig{MaxRetries: 3})

	event := testEvent(9, "u-9", domain.EventNameTokenBurned)
	if _, err := repo.InsertBatch(context.Background(), []domain.RawEvent{event}); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkFailed(context.Background(), 9, "transient failure"); err != nil {
		t.Fatal(err)
	}

	succeed := false
	processor.Subscribe(domain.EventNameTokenBurned, func(ctx context.Context, event domain.RawEvent) error {
		if !succeed {
			return errors.New("still failing")
		}
		return nil
	})

	poller.sweepFailed(context.Background())
	rec, _ := repo.FindByUniqueID(context.Background(), "u-9")
	if rec.Status != domain.StatusFailed || rec.RetryCount != 2 {
		t.Fatalf("expected second failure recorded, got %s/%d", rec.Status, rec.RetryCount)
	}

	succeed = true
	poller.sweepFailed(context.Background())
	rec, _ = repo.FindByUniqueID(context.Background(), "u-9")
	if rec.Status != domain.StatusProcessed {
		t.Fatalf("expected processed after successful retry, got %s", rec.Status)
	}
}

func TestPoller_SweepRespectsRetryCap(t *testing.T) {
	repo := mocks.NewMockEventRepository()
	upstream := &mocks.MockUpstreamClient{}
	poller, processor := newTestPoller(upstream, repo, nil, PollerConfig{MaxRetries: 1})

	event := testEvent(3, "u-3", domain.EventNameTokenBurned)
	if _, err := repo.InsertBatch(context.Background(), []domain.RawEvent{event}); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkFailed(context.Background(), 3, "boom"); err != nil {
		t.Fatal(err)
	}

	attempts := 0
	processor.Subscribe(domain.EventNameTokenBurned, func(ctx context.Context, event domain.RawEvent) error {
		attempts++
		return errors.New("boom")
	})

	poller.sweepFailed(context.Background())
	if attempts != 0 {
		t.Fatalf("expected no retry once the cap is reached, got %d attempts", attempts)
	}
}
