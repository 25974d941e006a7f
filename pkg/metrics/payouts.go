package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PayoutMetrics records processing outcomes for the payout queue.
type PayoutMetrics struct {
	duration   *prometheus.HistogramVec
	completed  prometheus.Counter
	failed     *prometheus.CounterVec
	broadcasts *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

// NewPayoutMetrics registers the payout metrics on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_duration_seconds",
		Help:    "Duration of payout processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_completed_total",
		Help: "Payouts that completed both legs.",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_failed_total",
		Help: "Payouts that failed, by error kind.",
	}, []string{"kind"})
	broadcasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_broadcast_total",
		Help: "Broadcast attempts by leg and result.",
	}, []string{"leg", "result"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "payout_queue_depth",
		Help: "Payout requests currently waiting in the queue.",
	})
	reg.MustRegister(duration, completed, failed, broadcasts, queueDepth)
	return &PayoutMetrics{
		duration:   duration,
		completed:  completed,
		failed:     failed,
		broadcasts: broadcasts,
		queueDepth: queueDepth,
	}
}

// ObserveDuration records the processing duration for the given outcome.
func (p *PayoutMetrics) ObserveDuration(outcome string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncCompleted increments the completed payout counter.
func (p *PayoutMetrics) IncCompleted() {
	if p == nil || p.completed == nil {
		return
	}
	p.completed.Inc()
}

// IncFailed increments the failed payout counter for the given error kind.
func (p *PayoutMetrics) IncFailed(kind string) {
	if p == nil || p.failed == nil {
		return
	}
	p.failed.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncBroadcast counts a broadcast attempt for the given leg.
func (p *PayoutMetrics) IncBroadcast(leg, result string) {
	if p == nil || p.broadcasts == nil {
		return
	}
	p.broadcasts.WithLabelValues(normalizeLabel(leg), normalizeLabel(result)).Inc()
}

// SetQueueDepth records the pending queue length.
func (p *PayoutMetrics) SetQueueDepth(depth int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(depth))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
