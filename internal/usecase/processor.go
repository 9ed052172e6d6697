package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/name-indexer/internal/adapter/metrics"
	"github.com/user/name-indexer/internal/domain"
)

// EventHandler reacts to a single dispatched event. Handlers must be
// idempotent: an acknowledgment failure after dispatch causes the same events
// to be re-dispatched on the next cycle.
type EventHandler func(ctx context.Context, event domain.RawEvent) error

// EventProcessor fans a persisted batch out to type-specific handlers and to
// any-event subscribers. The registry is per-instance; two processors never
// share subscriber state.
type EventProcessor struct {
	logger  *slog.Logger
	metrics *metrics.IndexerMetrics

	mu          sync.RWMutex
	handlers    map[domain.EventType][]EventHandler
	anyHandlers []EventHandler
}

// NewEventProcessor creates a processor with the built-in handlers for the six
// known event types already registered. Metrics may be nil in tests.
func NewEventProcessor(logger *slog.Logger, m *metrics.IndexerMetrics) *EventProcessor {
	p := &EventProcessor{
		logger:   logger.With("component", "event_processor"),
		metrics:  m,
		handlers: make(map[domain.EventType][]EventHandler),
	}
	p.registerBuiltins()
	return p
}

// Subscribe registers a handler for one event type.
func (p *EventProcessor) Subscribe(t domain.EventType, h EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[t] = append(p.handlers[t], h)
}

// SubscribeAll registers a handler invoked for every known-type event.
func (p *EventProcessor) SubscribeAll(h EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.anyHandlers = append(p.anyHandlers, h)
}

// Dispatch delivers each event in delivery order to its type-specific
// handlers and to all any-event subscribers. A failing or panicking handler is
// logged and isolated; it never aborts the remaining events, and the batch is
// still considered handled for acknowledgment purposes. Events with an
// unrecognized type are logged as a warning and skipped. The returned slice
// holds one entry per event whose dispatch failed.
func (p *EventProcessor) Dispatch(ctx context.Context, events []domain.RawEvent) []*domain.HandlerError {
	var failures []*domain.HandlerError

	for _, event := range events {
		if !event.Type.IsKnown() {
			p.logger.Warn("skipping event with unrecognized type",
				"type", event.Type, "unique_id", event.UniqueID, "event_id", event.ID)
			continue
		}

		if err := p.dispatchOne(ctx, event); err != nil {
			p.logger.Error("event handler failed",
				"type", event.Type, "unique_id", event.UniqueID, "event_id", event.ID, "error", err)
			if p.metrics != nil {
				p.metrics.HandlerFailuresTotal.WithLabelValues(string(event.Type)).Inc()
			}
			failures = append(failures, &domain.HandlerError{
				Type:     event.Type,
				UniqueID: event.UniqueID,
				Err:      err,
			})
		}
	}

	return failures
}

// dispatchOne runs the type handlers then the any-event handlers for a single
// event, converting panics into errors so one misbehaving subscriber cannot
// take down the poll loop.
func (p *EventProcessor) dispatchOne(ctx context.Context, event domain.RawEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	p.mu.RLock()
	typed := make([]EventHandler, len(p.handlers[event.Type]))
	copy(typed, p.handlers[event.Type])
	any := make([]EventHandler, len(p.anyHandlers))
	copy(any, p.anyHandlers)
	p.mu.RUnlock()

	for _, h := range typed {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	for _, h := range any {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// registerBuiltins wires the indexer's own projection of each event variant.
// The handlers decode the type-tagged payload into its closed sum type and
// record the domain-level view of what happened.
func (p *EventProcessor) registerBuiltins() {
	p.Subscribe(domain.EventNameTokenMinted, p.handleMinted)
	p.Subscribe(domain.EventNameTokenTransferred, p.handleTransferred)
	p.Subscribe(domain.EventNameTokenRenewed, p.handleRenewed)
	p.Subscribe(domain.EventNameTokenBurned, p.handleBurned)
	p.Subscribe(domain.EventNameTokenLockStatusChanged, p.handleLockStatusChanged)
	p.Subscribe(domain.EventNameTokenMetadataUpdated, p.handleMetadataUpdated)
}

func (p *EventProcessor) handleMinted(ctx context.Context, event domain.RawEvent) error {
	payload, err := event.DecodedPayload()
	if err != nil {
		return err
	}
	minted, _ := payload.(*domain.MintedPayload)
	chainID, _ := domain.ChainID(event.NetworkID)
	p.logger.Info("name token minted",
		"name", event.Name, "token_id", event.TokenID, "chain_id", chainID,
		"owner", minted.Owner, "finalized", event.Finalized)
	return nil
}

func (p *EventProcessor) handleTransferred(ctx context.Context, event domain.RawEvent) error {
	payload, err := event.DecodedPayload()
	if err != nil {
		return err
	}
	transferred, _ := payload.(*domain.TransferredPayload)
	p.logger.Info("name token transferred",
		"name", event.Name, "token_id", event.TokenID,
		"from", transferred.From, "to", transferred.To)
	return nil
}

func (p *EventProcessor) handleRenewed(ctx context.Context, event domain.RawEvent) error {
	payload, err := event.DecodedPayload()
	if err != nil {
		return err
	}
	renewed, _ := payload.(*domain.RenewedPayload)
	p.logger.Info("name token renewed",
		"name", event.Name, "token_id", event.TokenID, "expires_at", renewed.ExpiresAt)
	return nil
}

func (p *EventProcessor) handleBurned(ctx context.Context, event domain.RawEvent) error {
	p.logger.Info("name token burned", "name", event.Name, "token_id", event.TokenID)
	return nil
}

func (p *EventProcessor) handleLockStatusChanged(ctx context.Context, event domain.RawEvent) error {
	payload, err := event.DecodedPayload()
	if err != nil {
		return err
	}
	lock, _ := payload.(*domain.LockStatusChangedPayload)
	p.logger.Info("name token lock status changed",
		"name", event.Name, "token_id", event.TokenID, "locked", lock.Locked)
	return nil
}

func (p *EventProcessor) handleMetadataUpdated(ctx context.Context, event domain.RawEvent) error {
	p.logger.Info("name token metadata updated", "name", event.Name, "token_id", event.TokenID)
	return nil
}
