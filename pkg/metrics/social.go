package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SocialMetrics records trust and visibility engine activity.
type SocialMetrics struct {
	gateDenials   *prometheus.CounterVec
	txRetries     *prometheus.CounterVec
	txExhausted   *prometheus.CounterVec
	counterClamps *prometheus.CounterVec
	publishTime   *prometheus.HistogramVec
	backlog       prometheus.Gauge
	backlogAge    prometheus.Gauge
}

// NewSocialMetrics registers the social metrics on the provided registerer.
func NewSocialMetrics(reg prometheus.Registerer) *SocialMetrics {
	if reg == nil {
		return &SocialMetrics{}
	}
	gateDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_gate_denials_total",
		Help: "Social actions denied by the interaction gate.",
	}, []string{"action", "reason"})
	txRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_tx_retries_total",
		Help: "Transactions replayed after a write conflict.",
	}, []string{"op"})
	txExhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_tx_exhausted_total",
		Help: "Transactions that ran out of retry attempts.",
	}, []string{"op"})
	counterClamps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_counter_clamps_total",
		Help: "Counter decrements clamped at zero.",
	}, []string{"counter"})
	publishTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "social_outbox_publish_seconds",
		Help:    "Duration of outbox publish batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "social_outbox_backlog",
		Help: "Outbox rows waiting to be published.",
	})
	backlogAge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "social_outbox_oldest_age_seconds",
		Help: "Age of the oldest unpublished outbox row.",
	})
	reg.MustRegister(gateDenials, txRetries, txExhausted, counterClamps, publishTime, backlog, backlogAge)
	return &SocialMetrics{
		gateDenials:   gateDenials,
		txRetries:     txRetries,
		txExhausted:   txExhausted,
		counterClamps: counterClamps,
		publishTime:   publishTime,
		backlog:       backlog,
		backlogAge:    backlogAge,
	}
}

// GateDenied counts a denial for the action with the given reason token.
func (m *SocialMetrics) GateDenied(action, reason string) {
	if m == nil || m.gateDenials == nil {
		return
	}
	m.gateDenials.WithLabelValues(normalizeLabel(action), normalizeLabel(reason)).Inc()
}

// TxRetried satisfies db.RetryObserver.
func (m *SocialMetrics) TxRetried(op string) {
	if m == nil || m.txRetries == nil {
		return
	}
	m.txRetries.WithLabelValues(normalizeLabel(op)).Inc()
}

// TxExhausted satisfies db.RetryObserver.
func (m *SocialMetrics) TxExhausted(op string) {
	if m == nil || m.txExhausted == nil {
		return
	}
	m.txExhausted.WithLabelValues(normalizeLabel(op)).Inc()
}

// CounterClamped counts a decrement that would have gone negative.
func (m *SocialMetrics) CounterClamped(counter string) {
	if m == nil || m.counterClamps == nil {
		return
	}
	m.counterClamps.WithLabelValues(normalizeLabel(counter)).Inc()
}

// ObservePublish records the duration of an outbox publish batch.
func (m *SocialMetrics) ObservePublish(result string, duration time.Duration) {
	if m == nil || m.publishTime == nil {
		return
	}
	m.publishTime.WithLabelValues(normalizeLabel(result)).Observe(duration.Seconds())
}

// ObserveBacklog sets the outbox backlog gauges.
func (m *SocialMetrics) ObserveBacklog(pending int64, oldestAge time.Duration) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(pending))
	m.backlogAge.Set(oldestAge.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
