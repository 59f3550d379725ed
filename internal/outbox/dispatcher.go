// Package outbox delivers recorded domain events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/xeipuuv/gojsonschema"

	"example.com/timely/internal/events"
	"example.com/timely/internal/observability"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Dispatcher drains the outbox table and delivers events to Kafka using Schema Registry metadata.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	dlq              *DLQWriter
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	schemaIDCache    sync.Map
	validators       sync.Map
	now              func() time.Time
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, logger *slog.Logger, pollInterval time.Duration, batchSize int) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		dlq:              NewDLQWriter(pool),
		logger:           logger.With(slog.String("component", "outbox_dispatcher")),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		now:              func() time.Time { return time.Now().UTC() },
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox batch failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has returned.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer batchDuration.Observe(time.Since(start).Seconds())

	valid := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if err := d.validate(msg); err != nil {
			d.logger.Warn("outbox event rejected",
				slog.Int64("event_id", msg.EventID),
				slog.String("event_type", msg.EventType),
				slog.Any("error", err),
			)
			invalidCounter.WithLabelValues(msg.EventType).Inc()
			failedCounter.WithLabelValues(failureStageValidation).Inc()
			if dlqErr := d.moveToDLQ(ctx, []Message{msg}, err.Error()); dlqErr != nil {
				return dlqErr
			}
			continue
		}
		valid = append(valid, msg)
	}

	if len(valid) > 0 {
		if err := d.deliver(ctx, valid); err != nil {
			d.logger.Error("outbox delivery failed", slog.Int("events", len(valid)), slog.Any("error", err))
			failedCounter.WithLabelValues(failureStageDelivery).Add(float64(len(valid)))
			if dlqErr := d.moveToDLQ(ctx, valid, err.Error()); dlqErr != nil {
				return dlqErr
			}
		} else {
			for _, msg := range valid {
				deliveredCounter.WithLabelValues(msg.Topic).Inc()
			}
			observability.RecordEventPublished(latestOccurrence(valid))
		}
	}

	return d.markPublished(ctx, messages)
}

func (d *Dispatcher) fetchAndClaim(ctx context.Context) ([]Message, error) {
	var messages []Message
	err := pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		const query = `SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, actor_id, payload, occurred_at, dlq_retries, dlq_retry_at
            FROM outbox
            WHERE published_at IS NULL
            ORDER BY event_id
            LIMIT $1
            FOR UPDATE SKIP LOCKED`

		rows, err := tx.Query(ctx, query, d.batchSize)
		if err != nil {
			return err
		}
		messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
			var msg Message
			err := row.Scan(&msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic,
				&msg.SchemaSubject, &msg.PartitionKey, &msg.ActorID, &msg.Payload, &msg.OccurredAt, &msg.DLQRetries, &msg.DLQRetryAt)
			return msg, err
		})
		if err != nil || len(messages) == 0 {
			return err
		}

		ids := make([]int64, 0, len(messages))
		for _, msg := range messages {
			ids = append(ids, msg.EventID)
		}
		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// validate checks the payload against the catalog schema for its event type.
func (d *Dispatcher) validate(msg Message) error {
	meta, ok := events.Lookup(msg.EventType)
	if !ok {
		return fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	var schema *gojsonschema.Schema
	if cached, found := d.validators.Load(msg.EventType); found {
		schema = cached.(*gojsonschema.Schema)
	} else {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(meta.Schema))
		if err != nil {
			return fmt.Errorf("compile schema for event_type=%s: %w", msg.EventType, err)
		}
		d.validators.Store(msg.EventType, compiled)
		schema = compiled
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(msg.Payload))
	if err != nil {
		return fmt.Errorf("validate %s payload: %w", msg.EventType, err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("payload does not match schema for event_type=%s: %s", msg.EventType, strings.Join(problems, "; "))
}

func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)
	order := make([]string, 0, 2)

	for _, msg := range messages {
		meta, ok := events.Lookup(msg.EventType)
		if !ok {
			return fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
		}

		schemaID, err := d.schemaID(ctx, msg.SchemaSubject, meta.Schema)
		if err != nil {
			return err
		}

		if _, exists := batches[msg.Topic]; !exists {
			order = append(order, msg.Topic)
		}
		batches[msg.Topic] = append(batches[msg.Topic], newRecord(msg, schemaID, d.now()))
	}

	for _, topic := range order {
		if err := d.producer.WriteMessages(ctx, topic, batches[topic]...); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	cacheKey := subject + "::" + schema
	if id, found := d.schemaIDCache.Load(cacheKey); found {
		return id.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, messages []Message) error {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
	return err
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, messages []Message, reason string) error {
	for _, msg := range messages {
		entryReason := fmt.Sprintf("%s (topic=%s)", reason, msg.Topic)
		if err := d.dlq.Write(ctx, msg, entryReason); err != nil {
			return err
		}
		dlqCounter.WithLabelValues(msg.Topic, strconv.FormatBool(msg.DLQRetries > 0)).Inc()
	}
	return nil
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	ActorID       string
	Payload       json.RawMessage
	OccurredAt    time.Time

	// DLQRetries counts earlier requeues from the DLQ; DLQRetryAt is when the
	// next one is due should this delivery fail too.
	DLQRetries int
	DLQRetryAt *time.Time
}

func newRecord(msg Message, schemaID int, now time.Time) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: encodeWireFormat(schemaID, msg.Payload),
		Time:  now,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(msg.EventType)},
			{Key: events.HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
			{Key: events.HeaderAggregateID, Value: []byte(msg.AggregateID)},
			{Key: events.HeaderActorID, Value: []byte(msg.ActorID)},
		},
	}
}

func latestOccurrence(messages []Message) time.Time {
	var latest time.Time
	for _, msg := range messages {
		if msg.OccurredAt.After(latest) {
			latest = msg.OccurredAt
		}
	}
	return latest
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
