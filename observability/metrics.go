package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type auditMetrics struct {
	analyzed *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

type twapMetrics struct {
	orders    *prometheus.CounterVec
	intervals prometheus.Counter
	feesPaid  prometheus.Counter
}

var (
	auditMetricsOnce sync.Once
	auditRegistry    *auditMetrics

	twapMetricsOnce sync.Once
	twapRegistry    *twapMetrics
)

// Audit returns the lazily-initialised metrics registry tracking risk
// classification activity.
func Audit() *auditMetrics {
	auditMetricsOnce.Do(func() {
		auditRegistry = &auditMetrics{
			analyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapguard",
				Subsystem: "audit",
				Name:      "swaps_analyzed_total",
				Help:      "Total swaps accepted into the registry segmented by safety outcome.",
			}, []string{"safe"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapguard",
				Subsystem: "audit",
				Name:      "swaps_rejected_total",
				Help:      "Total swap submissions rejected before registration, by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(auditRegistry.analyzed, auditRegistry.rejected)
	})
	return auditRegistry
}

// RecordAnalyzed increments the analyzed counter for the supplied outcome.
func (m *auditMetrics) RecordAnalyzed(safe bool) {
	if m == nil {
		return
	}
	m.analyzed.WithLabelValues(strconv.FormatBool(safe)).Inc()
}

// RecordRejected increments the rejection counter for the supplied reason.
func (m *auditMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// Twap returns the lazily-initialised metrics registry tracking scheduler
// activity.
func Twap() *twapMetrics {
	twapMetricsOnce.Do(func() {
		twapRegistry = &twapMetrics{
			orders: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapguard",
				Subsystem: "twap",
				Name:      "orders_total",
				Help:      "Order lifecycle transitions segmented by outcome (created, completed, cancelled).",
			}, []string{"outcome"}),
			intervals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "swapguard",
				Subsystem: "twap",
				Name:      "intervals_executed_total",
				Help:      "Total interval executions settled through the venue.",
			}),
			feesPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "swapguard",
				Subsystem: "twap",
				Name:      "executor_fee_payments_total",
				Help:      "Total interval executions that paid a nonzero executor fee.",
			}),
		}
		prometheus.MustRegister(twapRegistry.orders, twapRegistry.intervals, twapRegistry.feesPaid)
	})
	return twapRegistry
}

// RecordOrder increments the order counter for the supplied lifecycle
// outcome.
func (m *twapMetrics) RecordOrder(outcome string) {
	if m == nil || outcome == "" {
		return
	}
	m.orders.WithLabelValues(outcome).Inc()
}

// RecordInterval increments the interval counter, noting whether a fee was
// paid.
func (m *twapMetrics) RecordInterval(feePaid bool) {
	if m == nil {
		return
	}
	m.intervals.Inc()
	if feePaid {
		m.feesPaid.Inc()
	}
}
