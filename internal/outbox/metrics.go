package outbox

import "github.com/prometheus/client_golang/prometheus"

const (
	failureStageValidation = "validation"
	failureStageDelivery   = "delivery"
)

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Timesheet events published to Kafka, by topic.",
	}, []string{"topic"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox events diverted to the DLQ, by the stage that rejected them (validation or delivery).",
	}, []string{"stage"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "timesheet_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time to claim, validate, publish and mark one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "DLQ writes by topic; requeued is true when the event had already been replayed from the DLQ.",
	}, []string{"topic", "requeued"})

	invalidCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "outbox",
		Name:      "events_invalid_total",
		Help:      "Outbox events whose payload failed its JSON schema, by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, invalidCounter)
}
