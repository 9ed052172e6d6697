package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/user/name-indexer/internal/domain"
)

// Publisher fans indexed events out to Kafka: every event goes to the generic
// topic and to a per-type sub-topic. It is registered as an any-event
// subscriber on the processor, so a broker outage surfaces as an ordinary
// isolated handler failure and never blocks ingestion.
type Publisher struct {
	writer      *kafka.Writer
	topicPrefix string
	logger      *slog.Logger
}

// NewPublisher creates a Kafka publisher. topicPrefix names the generic
// topic; sub-topics append a lowercased variant suffix, e.g.
// "name-token.events.minted".
func NewPublisher(brokers []string, topicPrefix string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.Hash{},
			// Topic is set per message so one writer serves every topic.
		},
		topicPrefix: topicPrefix,
		logger:      logger.With("component", "kafka_publisher"),
	}
}

// Handle publishes one event to both topics. Keyed by unique id so all
// deliveries of an event land on the same partition.
func (p *Publisher) Handle(ctx context.Context, event domain.RawEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.UniqueID, err)
	}

	messages := []kafka.Message{
		{Topic: p.topicPrefix, Key: []byte(event.UniqueID), Value: value},
		{Topic: p.subTopic(event.Type), Key: []byte(event.UniqueID), Value: value},
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("publish event %s: %w", event.UniqueID, err)
	}

	p.logger.Debug("published event", "unique_id", event.UniqueID, "type", event.Type)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) subTopic(t domain.EventType) string {
	suffix := strings.ToLower(strings.TrimPrefix(string(t), "NAME_TOKEN_"))
	return p.topicPrefix + "." + suffix
}
