//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/timely/internal/events"
	"example.com/timely/internal/logging"
	"example.com/timely/internal/persistence/postgres"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	eventID := seedOutbox(t, ctx, pool, projectCreatedMessage(t, uuid.NewString()))

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 42}, logging.Discard(), 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter.WithLabelValues(events.TopicProjects))
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, events.TopicProjects, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter.WithLabelValues(events.TopicProjects)), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var publishedAt *time.Time
	require.NoError(t, pool.QueryRow(ctx, `SELECT published_at FROM outbox WHERE event_id = $1`, eventID).Scan(&publishedAt))
	require.NotNil(t, publishedAt)
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	msg := activityDeletedMessage(t, uuid.NewString(), uuid.NewString())
	eventID := seedOutbox(t, ctx, pool, msg)

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, logging.Discard(), 10*time.Millisecond, 5)

	beforeFailed := testutil.ToFloat64(failedCounter.WithLabelValues(failureStageDelivery))
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(events.TopicActivities, "false"))

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter.WithLabelValues(failureStageDelivery)), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(events.TopicActivities, "false")), 0.0001)

	var actorID, reason string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT actor_id, reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&actorID, &reason))
	require.Equal(t, "alice", actorID)
	require.Contains(t, reason, "kafka write failed")
	require.Equal(t, 0, unpublished(t, ctx, pool))
}

func TestDispatcherRejectsPayloadsThatFailSchemaValidation(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	bad := projectCreatedMessage(t, uuid.NewString())
	bad.Payload = []byte(`{"project_id":"p1","name":""}`)
	badID := seedOutbox(t, ctx, pool, bad)
	seedOutbox(t, ctx, pool, projectCreatedMessage(t, uuid.NewString()))

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 3}, logging.Discard(), 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Len(t, producer.writes[0].messages, 1, "only the valid event is published")

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE event_id = $1`, badID).Scan(&reason))
	require.Contains(t, reason, "payload does not match schema")
	require.Equal(t, 0, unpublished(t, ctx, pool))
}

func TestDispatcherUnknownSchemaMovesEventsToDLQ(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	msg := projectCreatedMessage(t, uuid.NewString())
	msg.EventType = "project.archived"
	eventID := seedOutbox(t, ctx, pool, msg)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 99}
	dispatcher := NewDispatcher(pool, producer, registry, logging.Discard(), 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Empty(t, producer.writes, "unknown schema should skip kafka writes")
	require.Empty(t, registry.calls, "schema registry should not be invoked when metadata missing")

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&reason))
	require.Contains(t, reason, "no schema metadata for event_type=project.archived")
}

func TestDLQManagerRequeuesIntoOutbox(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	msg := projectCreatedMessage(t, uuid.NewString())
	msg.EventID = seedOutbox(t, ctx, pool, msg)
	require.NoError(t, NewDLQWriter(pool).Write(ctx, msg, "kafka down"))

	clock := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	manager := NewDLQManager(pool, logging.Discard(), 3, time.Minute)
	manager.now = func() time.Time { return clock }

	before := testutil.ToFloat64(dlqRequeuedCounter.WithLabelValues(msg.AggregateType, msg.EventType))
	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, 1, unpublished(t, ctx, pool), "entry is back in the outbox")
	require.InDelta(t, before+1, testutil.ToFloat64(dlqRequeuedCounter.WithLabelValues(msg.AggregateType, msg.EventType)), 0.0001)

	var (
		retries int
		retryAt time.Time
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT dlq_retries, dlq_retry_at FROM outbox WHERE published_at IS NULL`).Scan(&retries, &retryAt))
	require.Equal(t, 1, retries)
	require.WithinDuration(t, clock.Add(time.Minute), retryAt, time.Millisecond)

	backlog, err := manager.Backlog(ctx)
	require.NoError(t, err)
	require.Zero(t, backlog)
}

func TestPersistentDeliveryFailureEndsInQuarantine(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	msg := activityDeletedMessage(t, uuid.NewString(), uuid.NewString())
	seedOutbox(t, ctx, pool, msg)

	dispatcher := NewDispatcher(pool, &stubProducer{err: errors.New("broker unavailable")}, &stubRegistry{id: 11}, logging.Discard(), 10*time.Millisecond, 5)

	// a clock an hour behind keeps every scheduled retry due for the database
	clock := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	const maxRetries = 3
	manager := NewDLQManager(pool, logging.Discard(), maxRetries, time.Minute)
	manager.now = func() time.Time { return clock }

	beforeQuarantined := testutil.ToFloat64(dlqQuarantinedCounter.WithLabelValues(msg.AggregateType, msg.EventType))

	var retryDelays []time.Duration
	for attempt := 0; attempt <= maxRetries; attempt++ {
		require.NoError(t, dispatcher.processBatch(ctx))
		require.Equal(t, 0, unpublished(t, ctx, pool))

		var (
			retryCount  int
			nextRetryAt time.Time
		)
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT retry_count, next_retry_at FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&retryCount, &nextRetryAt))
		require.Equal(t, attempt, retryCount, "retry count survives the trip through the outbox")
		if attempt > 0 {
			retryDelays = append(retryDelays, nextRetryAt.Sub(clock))
		}

		processed, err := manager.RunOnce(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, 1, processed)
	}

	require.Equal(t, []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute}, retryDelays)
	require.Equal(t, 0, unpublished(t, ctx, pool), "quarantined entries are not requeued")
	require.InDelta(t, beforeQuarantined+1, testutil.ToFloat64(dlqQuarantinedCounter.WithLabelValues(msg.AggregateType, msg.EventType)), 0.0001)

	var (
		rows       int
		retryCount int
		reason     string
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) OVER (), retry_count, quarantine_reason FROM outbox_dlq WHERE quarantined_at IS NOT NULL`).Scan(&rows, &retryCount, &reason))
	require.Equal(t, 1, rows)
	require.Equal(t, maxRetries, retryCount)
	require.Contains(t, reason, quarantineReason)
	require.Contains(t, reason, "broker unavailable")

	backlog, err := manager.Backlog(ctx)
	require.NoError(t, err)
	require.Zero(t, backlog)
	require.InDelta(t, 1, testutil.ToFloat64(dlqQuarantinedGauge.WithLabelValues(msg.AggregateType)), 0.0001)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("timely"),
		postgrescontainer.WithUsername("timely"),
		postgrescontainer.WithPassword("timely"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = postgres.Migrate(ctx, pool)
	require.NoError(t, err)
	return pool
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, msg Message) int64 {
	t.Helper()

	var eventID int64
	err := pool.QueryRow(ctx,
		`INSERT INTO outbox (dedupe_key, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, actor_id, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         RETURNING event_id`,
		uuid.NewString(), msg.AggregateType, msg.AggregateID, msg.EventType, msg.Topic, msg.SchemaSubject, msg.PartitionKey, msg.ActorID, []byte(msg.Payload),
	).Scan(&eventID)
	require.NoError(t, err)
	return eventID
}

func unpublished(t *testing.T, ctx context.Context, pool *pgxpool.Pool) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&n))
	return n
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
