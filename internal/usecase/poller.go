package usecase

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/name-indexer/internal/adapter/metrics"
	"github.com/user/name-indexer/internal/domain"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
	defaultSweepLimit   = 50
)

// PollerConfig tunes the poll loop. Zero values fall back to defaults;
// RetryInterval of zero disables the failed-event sweep.
type PollerConfig struct {
	Interval      time.Duration
	BatchSize     int
	EventTypes    []domain.EventType
	FinalizedOnly bool
	RetryInterval time.Duration
	MaxRetries    int
}

// Poller drives ingestion: on every tick it polls the upstream API, persists
// the batch, dispatches it to the processor, and acknowledges progress — in
// that order. When the upstream reports more backlog it requeues an immediate
// poll instead of waiting for the next tick (greedy drain). Cycles for one
// instance are serialized by a reentrancy guard.
type Poller struct {
	upstream  domain.UpstreamClient
	events    domain.EventRepository
	cursor    *CursorManager
	processor *EventProcessor
	dedup     domain.DedupCache
	logger    *slog.Logger
	metrics   *metrics.IndexerMetrics
	cfg       PollerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	polling atomic.Bool
	pollNow chan struct{}
}

// NewPoller creates a poller. The dedup cache and metrics may be nil.
func NewPoller(
	upstream domain.UpstreamClient,
	events domain.EventRepository,
	cursor *CursorManager,
	processor *EventProcessor,
	dedup domain.DedupCache,
	logger *slog.Logger,
	m *metrics.IndexerMetrics,
	cfg PollerConfig,
) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Poller{
		upstream:  upstream,
		events:    events,
		cursor:    cursor,
		processor: processor,
		dedup:     dedup,
		logger:    logger.With("component", "poller"),
		metrics:   m,
		cfg:       cfg,
		pollNow:   make(chan struct{}, 1),
	}
}

// Start transitions the poller to Running: one immediate poll, then a
// repeating timer at the configured interval. Calling Start on a running
// poller is a logged no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Info("poller already running, ignoring start")
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.mu.Unlock()

	p.logger.Info("poller starting",
		"interval", p.cfg.Interval, "batch_size", p.cfg.BatchSize,
		"finalized_only", p.cfg.FinalizedOnly)
	go p.run(ctx)
}

// Stop disarms the timer and waits for an in-flight cycle to finish
// naturally. Safe to call on a stopped poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	done := p.done
	p.mu.Unlock()

	<-done
	p.logger.Info("poller stopped")
}

// IsRunning reports whether the poll loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(p.done)
	}()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var sweep <-chan time.Time
	if p.cfg.RetryInterval > 0 {
		sweepTicker := time.NewTicker(p.cfg.RetryInterval)
		defer sweepTicker.Stop()
		sweep = sweepTicker.C
	}

	p.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-p.pollNow:
			p.cycle(ctx)
		case <-ticker.C:
			p.cycle(ctx)
		case <-sweep:
			p.sweepFailed(ctx)
		}
	}
}

// cycle runs one poll iteration: poll, persist, dispatch, acknowledge. Any
// transport or persistence failure aborts the cycle with no state mutation;
// the fixed polling interval is the retry mechanism.
func (p *Poller) cycle(ctx context.Context) {
	if !p.polling.CompareAndSwap(false, true) {
		p.logger.Debug("poll cycle already in flight, skipping")
		return
	}
	defer p.polling.Store(false)

	afterID, err := p.cursor.Last(ctx)
	if err != nil {
		p.logger.Error("failed to read cursor", "error", err)
		p.countCycle(metrics.CycleErrorCursor)
		return
	}

	resp, err := p.upstream.Poll(ctx, domain.PollRequest{
		AfterID:       afterID,
		Limit:         p.cfg.BatchSize,
		EventTypes:    p.cfg.EventTypes,
		FinalizedOnly: p.cfg.FinalizedOnly,
	})
	if err != nil {
		terr := &domain.TransportError{Op: "poll", Err: err}
		p.logger.Warn("poll failed, retrying next tick", "after_id", afterID, "error", terr)
		p.countCycle(metrics.CycleErrorTransport)
		return
	}

	if len(resp.Events) == 0 {
		p.countCycle(metrics.CycleEmpty)
		p.setBacklog(false)
		return
	}

	if p.metrics != nil {
		p.metrics.EventsPolledTotal.Add(float64(len(resp.Events)))
	}

	toInsert := resp.Events
	if p.dedup != nil {
		toInsert = make([]domain.RawEvent, 0, len(resp.Events))
		for _, event := range resp.Events {
			if p.dedup.Seen(ctx, event.UniqueID) {
				continue
			}
			toInsert = append(toInsert, event)
		}
	}

	inserted, err := p.events.InsertBatch(ctx, toInsert)
	if err != nil {
		perr := &domain.PersistenceError{Err: err}
		p.logger.Error("batch insert failed, events remain upstream", "count", len(toInsert), "error", perr)
		p.countCycle(metrics.CycleErrorPersistence)
		return
	}
	if p.metrics != nil {
		p.metrics.EventsInsertedTotal.Add(float64(inserted))
		p.metrics.EventsSkippedTotal.Add(float64(len(resp.Events) - inserted))
	}
	if p.dedup != nil {
		ids := make([]string, len(resp.Events))
		for i, event := range resp.Events {
			ids[i] = event.UniqueID
		}
		p.dedup.Remember(ctx, ids...)
	}

	failures := p.processor.Dispatch(ctx, resp.Events)
	p.recordDispatchOutcomes(ctx, resp.Events, failures)

	if err := p.cursor.Acknowledge(ctx, resp.LastID); err != nil {
		p.logger.Error("acknowledgment failed, batch will be redelivered",
			"last_id", resp.LastID, "error", err)
		p.countCycle(metrics.CycleErrorAck)
		return
	}

	p.logger.Info("poll cycle complete",
		"polled", len(resp.Events), "inserted", inserted,
		"handler_failures", len(failures), "last_id", resp.LastID,
		"has_more", resp.HasMoreEvents)
	p.countCycle(metrics.CycleOK)
	if p.metrics != nil {
		p.metrics.LastAcknowledgedID.Set(float64(resp.LastID))
	}

	p.setBacklog(resp.HasMoreEvents)
	if resp.HasMoreEvents {
		// Queued requeue rather than a recursive call: the run loop picks it
		// up as soon as the current cycle returns.
		select {
		case p.pollNow <- struct{}{}:
		default:
		}
	}
}

// recordDispatchOutcomes mirrors handler results into the per-row lifecycle.
// Marking is best-effort; a mark failure never affects the durability or
// acknowledgment of the batch.
func (p *Poller) recordDispatchOutcomes(ctx context.Context, events []domain.RawEvent, failures []*domain.HandlerError) {
	failed := make(map[string]*domain.HandlerError, len(failures))
	for _, f := range failures {
		failed[f.UniqueID] = f
	}

	for _, event := range events {
		if !event.Type.IsKnown() {
			continue
		}
		if f, ok := failed[event.UniqueID]; ok {
			if err := p.events.MarkFailed(ctx, event.ID, f.Err.Error()); err != nil {
				p.logger.Warn("failed to record handler failure", "event_id", event.ID, "error", err)
			}
			continue
		}
		if err := p.events.MarkProcessed(ctx, event.ID); err != nil {
			p.logger.Warn("failed to mark event processed", "event_id", event.ID, "error", err)
		}
	}
}

// sweepFailed re-dispatches events stuck in failed status, up to the retry
// cap. Persistence and the cursor are untouched; only the per-row lifecycle
// fields change.
func (p *Poller) sweepFailed(ctx context.Context) {
	records, err := p.events.Find(ctx, domain.EventFilter{
		Status: domain.StatusFailed,
		Limit:  defaultSweepLimit,
	})
	if err != nil {
		p.logger.Warn("failed-event sweep query failed", "error", err)
		return
	}

	retried := 0
	for _, rec := range records {
		if p.cfg.MaxRetries > 0 && rec.RetryCount >= p.cfg.MaxRetries {
			continue
		}
		retried++
		failures := p.processor.Dispatch(ctx, []domain.RawEvent{rec.RawEvent})
		if len(failures) > 0 {
			if err := p.events.MarkFailed(ctx, rec.ID, failures[0].Err.Error()); err != nil {
				p.logger.Warn("failed to record retry failure", "event_id", rec.ID, "error", err)
			}
			continue
		}
		if err := p.events.MarkProcessed(ctx, rec.ID); err != nil {
			p.logger.Warn("failed to mark retried event processed", "event_id", rec.ID, "error", err)
		}
	}

	if retried > 0 {
		p.logger.Info("retried failed events", "count", retried)
	}
}

func (p *Poller) countCycle(status string) {
	if p.metrics != nil {
		p.metrics.PollCyclesTotal.WithLabelValues(status).Inc()
	}
}

func (p *Poller) setBacklog(hasMore bool) {
	if p.metrics == nil {
		return
	}
	if hasMore {
		p.metrics.BacklogRemaining.Set(1)
	} else {
		p.metrics.BacklogRemaining.Set(0)
	}
}
