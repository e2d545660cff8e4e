package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records the health of the outbox publisher loop. Stuck
// rows are surfaced through the pending gauge and the oldest-pending age
// rather than a retry cap.
type OutboxMetrics struct {
	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
	published *prometheus.CounterVec
	failures  *prometheus.CounterVec
	batchTime prometheus.Histogram
}

// NewOutboxMetrics registers the outbox metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_pending_rows",
		Help: "Outbox rows awaiting publication.",
	})
	oldestAge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest unpublished outbox row in seconds.",
	})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox rows published to the broker.",
	}, []string{"event_type"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Failed outbox publish attempts.",
	}, []string{"event_type"})
	batchTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of one outbox poll-publish batch.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(pending, oldestAge, published, failures, batchTime)
	return &OutboxMetrics{
		pending:   pending,
		oldestAge: oldestAge,
		published: published,
		failures:  failures,
		batchTime: batchTime,
	}
}

// SetPending records the current count of unpublished rows.
func (m *OutboxMetrics) SetPending(count int64) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(count))
}

// SetOldestPendingAge records the age of the oldest unpublished row.
func (m *OutboxMetrics) SetOldestPendingAge(age time.Duration) {
	if m == nil || m.oldestAge == nil {
		return
	}
	m.oldestAge.Set(age.Seconds())
}

// IncPublished increments the published counter for the event type.
func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailure increments the failure counter for the event type.
func (m *OutboxMetrics) IncFailure(eventType string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// ObserveBatch records how long one poll-publish batch took.
func (m *OutboxMetrics) ObserveBatch(duration time.Duration) {
	if m == nil || m.batchTime == nil {
		return
	}
	m.batchTime.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
