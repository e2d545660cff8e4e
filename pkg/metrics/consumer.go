package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConsumerMetrics records the behavior of an inbox consumer loop.
type ConsumerMetrics struct {
	processed    *prometheus.CounterVec
	duplicates   *prometheus.CounterVec
	retries      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	handlerTime  *prometheus.HistogramVec
}

// NewConsumerMetrics registers the consumer metrics on the provided registerer.
func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_processed_total",
		Help: "Messages processed to completion.",
	}, []string{"consumer", "event_type"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_duplicates_total",
		Help: "Messages skipped because the inbox had already seen them.",
	}, []string{"consumer", "event_type"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_retries_total",
		Help: "Messages routed to the retry queue.",
	}, []string{"consumer", "event_type"})
	deadLettered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_dead_lettered_total",
		Help: "Messages parked on the dead-letter queue.",
	}, []string{"consumer", "event_type"})
	handlerTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "consumer_handler_duration_seconds",
		Help:    "Duration of message handlers in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"consumer", "event_type"})
	reg.MustRegister(processed, duplicates, retries, deadLettered, handlerTime)
	return &ConsumerMetrics{
		processed:    processed,
		duplicates:   duplicates,
		retries:      retries,
		deadLettered: deadLettered,
		handlerTime:  handlerTime,
	}
}

// IncProcessed increments the processed counter.
func (m *ConsumerMetrics) IncProcessed(consumer, eventType string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType)).Inc()
}

// IncDuplicate increments the duplicate counter.
func (m *ConsumerMetrics) IncDuplicate(consumer, eventType string) {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType)).Inc()
}

// IncRetry increments the retry counter.
func (m *ConsumerMetrics) IncRetry(consumer, eventType string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType)).Inc()
}

// IncDeadLettered increments the dead-letter counter.
func (m *ConsumerMetrics) IncDeadLettered(consumer, eventType string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType)).Inc()
}

// ObserveHandler records the duration of a handler invocation.
func (m *ConsumerMetrics) ObserveHandler(consumer, eventType string, duration time.Duration) {
	if m == nil || m.handlerTime == nil {
		return
	}
	m.handlerTime.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType)).Observe(duration.Seconds())
}
