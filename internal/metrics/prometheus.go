package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the coordination cores.
type Metrics struct {
	// Epoch store metrics
	EpochStoreRequestsTotal          *prometheus.CounterVec
	EpochStoreCompletionsTotal       *prometheus.CounterVec
	EpochStoreProvisionsTotal        prometheus.Counter
	EpochStoreRootCreationsTotal     prometheus.Counter
	EpochStoreInternalInconsistency  prometheus.Counter
	EpochStoreClientSwapsTotal       prometheus.Counter

	// Health monitor metrics
	HealthMonitorNumLoops          prometheus.Counter
	HealthMonitorStallIndicator    prometheus.Counter
	HealthMonitorOverloadIndicator prometheus.Counter
	HealthMonitorStateIndicator    prometheus.Counter
	HealthMonitorDroppedReports    prometheus.Counter
}

// New creates and registers all metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EpochStoreRequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "epoch_store",
			Name:      "requests_total",
			Help:      "Total number of epoch store requests by kind",
		}, []string{"kind"}),
		EpochStoreCompletionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "epoch_store",
			Name:      "completions_total",
			Help:      "Total number of epoch store completions by status",
		}, []string{"status"}),
		EpochStoreProvisionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "epoch_store",
			Name:      "provisions_total",
			Help:      "Total number of log subtree provisioning multi-ops issued",
		}),
		EpochStoreRootCreationsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "epoch_store",
			Name:      "root_creations_total",
			Help:      "Total number of root znode creation rounds",
		}),
		EpochStoreInternalInconsistency: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "epoch_store",
			Name:      "internal_inconsistency_errors_total",
			Help:      "Total number of runtime inconsistency errors reported by the coordination service",
		}),
		EpochStoreClientSwapsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "epoch_store",
			Name:      "client_swaps_total",
			Help:      "Total number of client rebinds caused by quorum changes",
		}),
		HealthMonitorNumLoops: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "health_monitor",
			Name:      "num_loops_total",
			Help:      "Total number of health monitor loop iterations",
		}),
		HealthMonitorStallIndicator: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "health_monitor",
			Name:      "stall_indicator_total",
			Help:      "Ticks on which the node was evaluated as stalled",
		}),
		HealthMonitorOverloadIndicator: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "health_monitor",
			Name:      "overload_indicator_total",
			Help:      "Ticks on which the node was evaluated as overloaded",
		}),
		HealthMonitorStateIndicator: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "health_monitor",
			Name:      "state_indicator_total",
			Help:      "Ticks on which the node was healthy",
		}),
		HealthMonitorDroppedReports: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "tidelog",
			Subsystem: "health_monitor",
			Name:      "dropped_reports_total",
			Help:      "Reports dropped because the monitor executor queue was full",
		}),
	}
}
