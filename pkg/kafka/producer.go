package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers     []string
	EventsTopic string
	ItemsTopic  string
}

// MessageWriter is the part of kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes integration lifecycle events and listed items
type Producer struct {
	events      MessageWriter
	items       MessageWriter
	logger      ectologger.Logger
	eventsTopic string
	itemsTopic  string
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Lets a first publish in dev succeed before the topic exists.
		AllowAutoTopicCreation: true,
	}
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	return NewProducerWithWriters(newWriter(cfg.Brokers, cfg.EventsTopic), newWriter(cfg.Brokers, cfg.ItemsTopic), cfg, logger)
}

// NewProducerWithWriters creates a producer over existing writers.
func NewProducerWithWriters(events, items MessageWriter, cfg Config, logger ectologger.Logger) *Producer {
	return &Producer{
		events:      events,
		items:       items,
		logger:      logger,
		eventsTopic: cfg.EventsTopic,
		itemsTopic:  cfg.ItemsTopic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	var firstErr error
	if err := p.events.Close(); err != nil {
		firstErr = err
	}
	if err := p.items.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ItemMessage carries one normalized item with the identity it was listed for.
type ItemMessage struct {
	Provider  models.Provider        `json:"provider"`
	OrgID     string                 `json:"org_id"`
	UserID    string                 `json:"user_id"`
	Item      models.IntegrationItem `json:"item"`
	Timestamp time.Time              `json:"timestamp"`

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

func messageKey(provider models.Provider, orgID, userID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", provider, orgID, userID))
}

func traceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := tracing.Carrier(ctx)
	for _, key := range carrier.Keys() {
		if value := carrier.Get(key); value != "" {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}
	return headers
}

// PublishConnectionEvent publishes a lifecycle event to the events topic
func (p *Producer) PublishConnectionEvent(ctx context.Context, evt *models.ConnectionEvent) error {
	if evt == nil {
		return fmt.Errorf("connection event is nil")
	}

	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishConnectionEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.eventsTopic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("provider", evt.Provider.String()),
		attribute.String("event_type", string(evt.Type)),
	)

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal event")
		return fmt.Errorf("failed to marshal connection event: %w", err)
	}

	headers := traceHeaders(ctx, []kafka.Header{
		{Key: "org_id", Value: []byte(evt.OrgID)},
		{Key: "provider", Value: []byte(evt.Provider)},
		{Key: "type", Value: []byte(evt.Type)},
	})

	start := time.Now()
	if err := p.events.WriteMessages(ctx, kafka.Message{
		Key:     messageKey(evt.Provider, evt.OrgID, evt.UserID),
		Value:   data,
		Headers: headers,
	}); err != nil {
		metrics.RecordKafkaPublish(p.eventsTopic, "error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish event")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish connection event to Kafka topic %s", p.eventsTopic)
		return err
	}
	metrics.RecordKafkaPublish(p.eventsTopic, "success", time.Since(start).Seconds())

	span.SetStatus(codes.Ok, "event published")
	return nil
}

// PublishItems publishes one message per item to the items topic in a single batch
func (p *Producer) PublishItems(ctx context.Context, evt *models.ConnectionEvent, items []models.IntegrationItem) error {
	if len(items) == 0 {
		return nil
	}
	if evt == nil {
		return fmt.Errorf("connection event is nil")
	}

	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishItems")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.itemsTopic),
		attribute.String("messaging.operation", "publish"),
		attribute.Int("messaging.batch_size", len(items)),
		attribute.String("provider", evt.Provider.String()),
	)

	traceID := tracing.GetTraceID(ctx)
	spanID := tracing.GetSpanID(ctx)
	headers := traceHeaders(ctx, []kafka.Header{
		{Key: "org_id", Value: []byte(evt.OrgID)},
		{Key: "provider", Value: []byte(evt.Provider)},
	})
	key := messageKey(evt.Provider, evt.OrgID, evt.UserID)
	now := time.Now().UTC()

	messages := make([]kafka.Message, len(items))
	for i, item := range items {
		data, err := json.Marshal(ItemMessage{
			Provider:  evt.Provider,
			OrgID:     evt.OrgID,
			UserID:    evt.UserID,
			Item:      item,
			Timestamp: now,
			TraceID:   traceID,
			SpanID:    spanID,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("failed to marshal item %d", i))
			return fmt.Errorf("failed to marshal item %d: %w", i, err)
		}
		messages[i] = kafka.Message{Key: key, Value: data, Headers: headers}
	}

	start := time.Now()
	if err := p.items.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaPublish(p.itemsTopic, "error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish batch")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish items to Kafka topic %s", p.itemsTopic)
		return err
	}
	metrics.RecordKafkaPublish(p.itemsTopic, "success", time.Since(start).Seconds())

	span.SetStatus(codes.Ok, "batch published")
	p.logger.WithContext(ctx).Debugf("Published %d %s items to Kafka", len(items), evt.Provider)
	return nil
}
