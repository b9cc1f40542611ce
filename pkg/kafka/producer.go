package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// messageWriter is the part of kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles Kafka event emission
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.Topic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// CaseEvent is the envelope of every event about a case. Events of one case share a
// partition key, so consumers see them in order.
type CaseEvent struct {
	EventType     string          `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	CaseID        string          `json:"case_id"`
	DocumentID    string          `json:"document_id,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
}

// PublishCaseEvent publishes one case event
func (p *Producer) PublishCaseEvent(ctx context.Context, event *CaseEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishCaseEvent")
	defer span.End()

	msg, err := p.message(ctx, event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.KafkaMessagesPublished.WithLabelValues(p.topic, "failed").Inc()
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish case event")
		return err
	}
	metrics.KafkaMessagesPublished.WithLabelValues(p.topic, "ok").Inc()

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"case_id":    event.CaseID,
	}).Debug("Published case event")

	return nil
}

// PublishCaseEvents publishes multiple case events in a batch
func (p *Producer) PublishCaseEvents(ctx context.Context, events []*CaseEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishCaseEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := p.message(ctx, event)
		if err != nil {
			return err
		}
		messages[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.KafkaMessagesPublished.WithLabelValues(p.topic, "failed").Add(float64(len(messages)))
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish case events batch")
		return err
	}
	metrics.KafkaMessagesPublished.WithLabelValues(p.topic, "ok").Add(float64(len(messages)))

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published case events batch")

	return nil
}

func (p *Producer) message(ctx context.Context, event *CaseEvent) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(event.EventType)},
		{Key: HeaderSchemaVersion, Value: []byte(event.SchemaVersion)},
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for _, key := range carrier.Keys() {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(carrier.Get(key))})
	}

	return kafka.Message{
		Topic:   p.topic,
		Key:     []byte(event.CaseID),
		Value:   data,
		Headers: headers,
	}, nil
}
