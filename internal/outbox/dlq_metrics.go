package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DLQ collectors are labelled by aggregate type: project or activity.
var (
	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "dlq",
		Name:      "events_requeued_total",
		Help:      "DLQ entries replayed into the outbox.",
	}, []string{"aggregate_type", "event_type"})

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "dlq",
		Name:      "events_quarantined_total",
		Help:      "DLQ entries parked for manual review after DLQ_MAX_RETRIES requeues.",
	}, []string{"aggregate_type", "event_type"})

	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "dlq",
		Name:      "requeue_failures_total",
		Help:      "Requeue attempts that could not write to the outbox and were rescheduled.",
	}, []string{"aggregate_type", "event_type"})

	dlqRequeueDepth = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "timesheet_service",
		Subsystem: "dlq",
		Name:      "requeue_attempt",
		Help:      "Requeue attempt number at the time an entry left the DLQ, by outcome.",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	}, []string{"outcome"})

	dlqPendingGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "timesheet_service",
		Subsystem: "dlq",
		Name:      "pending_events",
		Help:      "DLQ entries still awaiting a retry, by aggregate.",
	}, []string{"aggregate_type"})

	dlqQuarantinedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "timesheet_service",
		Subsystem: "dlq",
		Name:      "quarantined_events",
		Help:      "Quarantined DLQ entries awaiting manual review, by aggregate.",
	}, []string{"aggregate_type"})

	dlqOldestPendingGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "timesheet_service",
		Subsystem: "dlq",
		Name:      "oldest_pending_age_seconds",
		Help:      "Age of the oldest DLQ entry awaiting a retry, by aggregate.",
	}, []string{"aggregate_type"})
)

func init() {
	prometheus.MustRegister(dlqRequeuedCounter, dlqQuarantinedCounter, dlqRetryCounter, dlqRequeueDepth,
		dlqPendingGauge, dlqQuarantinedGauge, dlqOldestPendingGauge)
}

func recordDLQRequeued(entry dlqEntry) {
	dlqRequeuedCounter.WithLabelValues(entry.AggregateType, entry.EventType).Inc()
	dlqRequeueDepth.WithLabelValues("requeued").Observe(float64(entry.RetryCount + 1))
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqQuarantinedCounter.WithLabelValues(entry.AggregateType, entry.EventType).Inc()
	dlqRequeueDepth.WithLabelValues("quarantined").Observe(float64(entry.RetryCount))
}

func recordDLQRetry(entry dlqEntry) {
	dlqRetryCounter.WithLabelValues(entry.AggregateType, entry.EventType).Inc()
}

// updateBacklogGauge refreshes the per-aggregate DLQ gauges and returns the
// number of entries still awaiting a retry.
func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	rows, err := pool.Query(ctx, `
        SELECT aggregate_type,
               COUNT(*) FILTER (WHERE quarantined_at IS NULL),
               COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL),
               COALESCE(EXTRACT(EPOCH FROM NOW() - MIN(created_at) FILTER (WHERE quarantined_at IS NULL)), 0)::float8
          FROM outbox_dlq
         GROUP BY aggregate_type`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	dlqPendingGauge.Reset()
	dlqQuarantinedGauge.Reset()
	dlqOldestPendingGauge.Reset()

	pending := 0
	for rows.Next() {
		var (
			aggregateType string
			waiting       int
			quarantined   int
			oldest        float64
		)
		if err := rows.Scan(&aggregateType, &waiting, &quarantined, &oldest); err != nil {
			return 0, err
		}
		dlqPendingGauge.WithLabelValues(aggregateType).Set(float64(waiting))
		dlqQuarantinedGauge.WithLabelValues(aggregateType).Set(float64(quarantined))
		dlqOldestPendingGauge.WithLabelValues(aggregateType).Set(oldest)
		pending += waiting
	}
	return pending, rows.Err()
}
