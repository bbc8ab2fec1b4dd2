// Package metrics manages Prometheus instrumentation for reconciliation
// activity.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics instruments the reconciliation coordinator.
type ReconcileMetrics struct {
	reconcileDuration *prometheus.HistogramVec
	reconcileResults  *prometheus.CounterVec
	roleGrants        prometheus.Counter
	roleRevokes       prometheus.Counter
	hijackRejections  prometheus.Counter
	queueDepth        prometheus.Gauge
	inflight          prometheus.Gauge
}

var (
	instance *ReconcileMetrics
	once     sync.Once
)

// Get returns the process-wide reconciliation metrics, registering them on
// first use.
func Get() *ReconcileMetrics {
	once.Do(func() {
		instance = newReconcileMetrics()
	})
	return instance
}

func newReconcileMetrics() *ReconcileMetrics {
	m := &ReconcileMetrics{
		reconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rolesync",
				Subsystem: "reconcile",
				Name:      "duration_seconds",
				Help:      "Duration of reconciliation runs per trigger kind.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"trigger"},
		),
		reconcileResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rolesync",
				Subsystem: "reconcile",
				Name:      "results_total",
				Help:      "Reconciliation outcomes per trigger kind.",
			},
			[]string{"trigger", "result"},
		),
		roleGrants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rolesync",
			Subsystem: "directory",
			Name:      "role_grants_total",
			Help:      "Roles granted in the membership directory.",
		}),
		roleRevokes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rolesync",
			Subsystem: "directory",
			Name:      "role_revokes_total",
			Help:      "Roles revoked in the membership directory.",
		}),
		hijackRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rolesync",
			Subsystem: "guard",
			Name:      "hijack_rejections_total",
			Help:      "Verification attempts rejected because the email was claimed by another account.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rolesync",
			Subsystem: "reconcile",
			Name:      "queue_depth",
			Help:      "Reconciliation requests waiting behind a per-email queue.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rolesync",
			Subsystem: "reconcile",
			Name:      "inflight",
			Help:      "Reconciliations currently executing.",
		}),
	}

	prometheus.MustRegister(
		m.reconcileDuration,
		m.reconcileResults,
		m.roleGrants,
		m.roleRevokes,
		m.hijackRejections,
		m.queueDepth,
		m.inflight,
	)

	return m
}

// RecordResult records one finished reconciliation.
func (m *ReconcileMetrics) RecordResult(trigger, result string, start time.Time) {
	if m == nil {
		return
	}
	m.reconcileDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
	m.reconcileResults.WithLabelValues(trigger, result).Inc()
}

func (m *ReconcileMetrics) RoleGranted() {
	if m != nil {
		m.roleGrants.Inc()
	}
}

func (m *ReconcileMetrics) RoleRevoked() {
	if m != nil {
		m.roleRevokes.Inc()
	}
}

func (m *ReconcileMetrics) HijackRejected() {
	if m != nil {
		m.hijackRejections.Inc()
	}
}

func (m *ReconcileMetrics) QueueEnter() {
	if m != nil {
		m.queueDepth.Inc()
	}
}

func (m *ReconcileMetrics) QueueLeave() {
	if m != nil {
		m.queueDepth.Dec()
	}
}

func (m *ReconcileMetrics) InflightEnter() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *ReconcileMetrics) InflightLeave() {
	if m != nil {
		m.inflight.Dec()
	}
}
