package consumer

import "github.com/prometheus/client_golang/prometheus"

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "event_log",
		Name:      "events_recorded_total",
		Help:      "Timesheet events handled and committed, by topic and event type.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "event_log",
		Name:      "handler_errors_total",
		Help:      "Failed handler attempts. Each failure is retried until the event is recorded.",
	}, []string{"topic", "event_type"})

	handlerRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "event_log",
		Name:      "handler_retries_total",
		Help:      "Times an event was handed to the handler again after a failure.",
	}, []string{"topic", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timesheet_service",
		Subsystem: "event_log",
		Name:      "undecodable_records_total",
		Help:      "Records skipped because they lacked Confluent framing, an event_type header or a JSON body.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "timesheet_service",
		Subsystem: "event_log",
		Name:      "last_recorded_event_timestamp_seconds",
		Help:      "Kafka timestamp of the newest event recorded per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, handlerRetryCounter, decodeErrorCounter, lastMessageGauge)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordHandlerRetry(msg Message) {
	handlerRetryCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
