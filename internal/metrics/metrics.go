// Package metrics exposes the LID manager's activity as Prometheus
// collectors, registered against a caller-supplied registry (cmd/opensmd
// wires them into an HTTP /metrics endpoint).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge the orchestrator and its
// collaborators update over a sweep's lifetime.
type Metrics struct {
	SweepsTotal        prometheus.Counter
	SweepDuration      prometheus.Histogram
	SweepFatalTotal    prometheus.Counter
	PortsResolvedTotal *prometheus.CounterVec
	PortInfoSetsTotal  prometheus.Counter
	PendingSubmissions prometheus.GaugeFunc
	FreeLIDsRemaining  prometheus.Gauge
	ValidationRejected prometheus.Counter
}

// New builds a Metrics bundle and registers every collector on reg.
// pendingFn is polled on scrape to report PendingSubmissions, typically
// Orchestrator.PendingSubmissions.
func New(reg prometheus.Registerer, pendingFn func() float64) *Metrics {
	m := &Metrics{
		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opensm",
			Subsystem: "lid_manager",
			Name:      "sweeps_total",
			Help:      "Total number of completed process_subnet sweeps.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "opensm",
			Subsystem: "lid_manager",
			Name:      "sweep_duration_seconds",
			Help:      "Wall-clock duration of each process_subnet sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepFatalTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opensm",
			Subsystem: "lid_manager",
			Name:      "sweep_fatal_total",
			Help:      "Total number of sweeps aborted by a FatalError.",
		}),
		PortsResolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opensm",
			Subsystem: "lid_manager",
			Name:      "ports_resolved_total",
			Help:      "Ports resolved per outcome (kept: base LID unchanged, allocated: base LID changed).",
		}, []string{"outcome"}),
		PortInfoSetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opensm",
			Subsystem: "lid_manager",
			Name:      "portinfo_sets_total",
			Help:      "Total number of PortInfoSet requests submitted.",
		}),
		FreeLIDsRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opensm",
			Subsystem: "lid_manager",
			Name:      "free_lids_remaining",
			Help:      "Sum of free_ranges sizes after the last sweep.",
		}),
		ValidationRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opensm",
			Subsystem: "lid_manager",
			Name:      "validation_rejected_total",
			Help:      "Persistent guid2lid entries rejected at validation.",
		}),
	}

	if pendingFn != nil {
		m.PendingSubmissions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "opensm",
			Subsystem: "lid_manager",
			Name:      "pending_submissions",
			Help:      "PortInfoSet requests issued but not yet acknowledged.",
		}, pendingFn)
	}

	collectors := []prometheus.Collector{
		m.SweepsTotal, m.SweepDuration, m.SweepFatalTotal,
		m.PortsResolvedTotal, m.PortInfoSetsTotal, m.FreeLIDsRemaining,
		m.ValidationRejected,
	}
	if m.PendingSubmissions != nil {
		collectors = append(collectors, m.PendingSubmissions)
	}

	for _, c := range collectors {
		reg.MustRegister(c)
	}

	return m
}
