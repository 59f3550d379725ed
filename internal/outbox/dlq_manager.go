package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxRetries = 5
	maxBackoff        = time.Hour
	quarantineReason  = "retry limit reached"
)

type dlqOutcome int

const (
	outcomeRequeued dlqOutcome = iota
	outcomeRetryScheduled
	outcomeQuarantined
)

// DLQManager handles retrying failed outbox messages and quarantining exhausted entries.
type DLQManager struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	now        func() time.Time
}

// NewDLQManager constructs a DLQManager with the provided pool and retry configuration.
func NewDLQManager(pool *pgxpool.Pool, logger *slog.Logger, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DLQManager{
		pool:       pool,
		logger:     logger.With(slog.String("component", "dlq_manager")),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := m.RunOnce(ctx, batchSize)
			switch {
			case err != nil && !errors.Is(err, context.Canceled):
				m.logger.Error("dlq pass failed", slog.Int("processed", processed), slog.Any("error", err))
			case processed > 0:
				m.logger.Info("dlq pass complete", slog.Int("processed", processed))
			}
		}
	}
}

// RunOnce processes a batch of due DLQ entries and returns how many were
// resolved, either by requeueing them into the outbox or by quarantining them.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, actor_id, retry_count
                    FROM outbox_dlq
                   WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
                   ORDER BY created_at
                   LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, scanDLQEntry)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, entry := range entries {
		outcome, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			err = errors.Join(err, procErr)
			continue
		}
		switch outcome {
		case outcomeRequeued:
			recordDLQRequeued(entry)
			processed++
		case outcomeQuarantined:
			m.logger.Warn("dlq entry quarantined",
				slog.Int64("dlq_id", entry.ID),
				slog.String("event_type", entry.EventType),
				slog.Int("retry_count", entry.RetryCount),
			)
			recordDLQQuarantined(entry)
			processed++
		case outcomeRetryScheduled:
			recordDLQRetry(entry)
		}
	}

	if _, gaugeErr := updateBacklogGauge(ctx, m.pool); gaugeErr != nil {
		err = errors.Join(err, gaugeErr)
	}
	return processed, err
}

// handleEntry applies retry/quarantine logic for a single DLQ entry.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (dlqOutcome, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if entry.RetryCount >= m.maxRetries {
		reason := fmt.Sprintf("%s after %d requeues of %s: %s", quarantineReason, entry.RetryCount, entry.EventType, entry.Reason)
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			reason, entry.ID,
		); err != nil {
			return 0, err
		}
		return outcomeQuarantined, tx.Commit(ctx)
	}

	next := m.now().Add(m.backoffDelay(entry.RetryCount + 1))

	// requeue runs in a savepoint so a failed insert leaves the outer tx usable
	// for scheduling the next attempt.
	insertErr := pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
		return requeueOutbox(ctx, sp, entry, next)
	})
	if insertErr != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_dlq
               SET retry_count = retry_count + 1,
                   last_attempt_at = NOW(),
                   next_retry_at = $1,
                   reason = $2
             WHERE dlq_id = $3`,
			next, insertErr.Error(), entry.ID,
		); err != nil {
			return 0, err
		}
		return outcomeRetryScheduled, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return 0, err
	}
	return outcomeRequeued, tx.Commit(ctx)
}

// Backlog returns the number of unquarantined DLQ entries and refreshes the backlog gauge.
func (m *DLQManager) Backlog(ctx context.Context) (int, error) {
	return updateBacklogGauge(ctx, m.pool)
}

// backoffDelay calculates exponential backoff capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return maxBackoff
	}
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// requeueOutbox reinserts the payload into the primary outbox table for replay
// under a fresh dedupe key. The row carries the incremented retry count and
// the time the following retry is due, which DLQWriter restores if the replay
// fails as well.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry, retryAt time.Time) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}

	const stmt = `INSERT INTO outbox (dedupe_key, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, actor_id, payload, dlq_retries, dlq_retry_at)
                   VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err := tx.Exec(ctx, stmt,
		uuid.NewString(),
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Topic,
		entry.SchemaSubject,
		entry.PartitionKey,
		entry.ActorID,
		entry.Payload,
		entry.RetryCount+1,
		retryAt,
	)
	return err
}

// dlqEntry represents an outbox_dlq row selected for processing.
type dlqEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	ActorID       string
	RetryCount    int
}

func scanDLQEntry(row pgx.CollectableRow) (dlqEntry, error) {
	var entry dlqEntry
	if err := row.Scan(&entry.ID, &entry.EventID, &entry.EventType, &entry.Topic, &entry.Payload, &entry.Reason,
		&entry.AggregateType, &entry.AggregateID, &entry.SchemaSubject, &entry.PartitionKey, &entry.ActorID, &entry.RetryCount); err != nil {
		return dlqEntry{}, err
	}
	return entry, nil
}
