package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// WebhookRecorder records the result of each webhook delivery.
type WebhookRecorder interface {
	RecordEvent(shape, eventType, outcome string)
	RecordDuration(shape string, d time.Duration)
	RecordRejected(reason string)
}

// NoopWebhookRecorder discards everything.
type NoopWebhookRecorder struct{}

func (NoopWebhookRecorder) RecordEvent(string, string, string)   {}
func (NoopWebhookRecorder) RecordDuration(string, time.Duration) {}
func (NoopWebhookRecorder) RecordRejected(string)                {}

var webhookEvents = &Metric{
	ID:          "webhookEvents",
	Name:        "webhook_events_total",
	Description: "Verified webhook deliveries, partitioned by payload shape, event type and handler outcome.",
	Type:        "counter_vec",
	Args:        []string{"shape", "type", "outcome"},
}

var webhookDur = &Metric{
	ID:          "webhookDur",
	Name:        "webhook_handle_dur_ms",
	Description: "Time spent classifying and reconciling one webhook delivery in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"shape"},
}

var webhookRejected = &Metric{
	ID:          "webhookRejected",
	Name:        "webhook_rejected_total",
	Description: "Webhook deliveries rejected before classification.",
	Type:        "counter_vec",
	Args:        []string{"reason"},
}

// PrometheusWebhookRecorder exports webhook results as Prometheus collectors.
type PrometheusWebhookRecorder struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rejected *prometheus.CounterVec
}

func NewPrometheusWebhookRecorder(reg prometheus.Registerer, subsystem string, log *zap.SugaredLogger) *PrometheusWebhookRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PrometheusWebhookRecorder{
		events:   register(reg, webhookEvents, subsystem, log).(*prometheus.CounterVec),
		duration: register(reg, webhookDur, subsystem, log).(*prometheus.HistogramVec),
		rejected: register(reg, webhookRejected, subsystem, log).(*prometheus.CounterVec),
	}
}

func (r *PrometheusWebhookRecorder) RecordEvent(shape, eventType, outcome string) {
	r.events.WithLabelValues(shape, eventType, outcome).Inc()
}

func (r *PrometheusWebhookRecorder) RecordDuration(shape string, d time.Duration) {
	r.duration.WithLabelValues(shape).Observe(float64(d) / float64(time.Millisecond))
}

func (r *PrometheusWebhookRecorder) RecordRejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}
