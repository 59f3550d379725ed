// Package observability holds the Prometheus collectors and tracing setup shared by the binaries.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded for every core operation.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation"
	OutcomeNotFound   = "not_found"
	OutcomeForbidden  = "forbidden"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

var (
	operationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "core",
		Name:      "operations_total",
		Help:      "Number of project and activity operations grouped by outcome.",
	}, []string{"op", "outcome"})

	hoursLoggedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "core",
		Name:      "hours_logged_total",
		Help:      "Sum of hours worked across every activity logged.",
	})

	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timesheet_service",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity write committed to the store.",
	})
	eventPublishedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timesheet_service",
		Subsystem: "persistence",
		Name:      "last_event_published_timestamp_seconds",
		Help:      "Unix timestamp of the most recent outbox batch published to Kafka.",
	})
)

func init() {
	prometheus.MustRegister(operationsCounter, hoursLoggedCounter, activityPersistGauge, eventPublishedGauge)
}

// RecordOperation counts a finished core operation.
func RecordOperation(op, outcome string) {
	operationsCounter.WithLabelValues(op, outcome).Inc()
}

// OperationCount returns the current counter value, for tests.
func OperationCount(op, outcome string) prometheus.Counter {
	return operationsCounter.WithLabelValues(op, outcome)
}

// RecordHoursLogged adds newly logged hours.
func RecordHoursLogged(hours float64) {
	if hours <= 0 {
		return
	}
	hoursLoggedCounter.Add(hours)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordEventPublished updates the publish watermark gauge.
func RecordEventPublished(ts time.Time) {
	if ts.IsZero() {
		return
	}
	eventPublishedGauge.Set(float64(ts.Unix()))
}
