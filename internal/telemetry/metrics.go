package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/temirov/glmigrate/internal/jobstate"
)

const (
	metricsNamespaceConstant      = "glmigrate"
	labelStatusConstant           = "status"
	labelKindConstant             = "kind"
	labelOutcomeConstant          = "outcome"
	outcomeCompletedValueConstant = "completed"
	outcomeFailedValueConstant    = "failed"
)

// MigrationMetrics exposes run progress as Prometheus metrics.
type MigrationMetrics struct {
	registry *prometheus.Registry

	runsStartedTotal  prometheus.Counter
	runsFinishedTotal *prometheus.CounterVec
	runActive         prometheus.Gauge
	itemsTotal        *prometheus.CounterVec
	itemsExpected     *prometheus.GaugeVec
	transfersTotal    *prometheus.CounterVec
}

// NewMigrationMetrics creates the migration metrics and registers them with registry.
func NewMigrationMetrics(registry *prometheus.Registry) (*MigrationMetrics, error) {
	metrics := &MigrationMetrics{registry: registry}
	metrics.initMetrics()

	collectors := []prometheus.Collector{
		metrics.runsStartedTotal,
		metrics.runsFinishedTotal,
		metrics.runActive,
		metrics.itemsTotal,
		metrics.itemsExpected,
		metrics.transfersTotal,
	}
	for _, collector := range collectors {
		if registerError := registry.Register(collector); registerError != nil {
			return nil, registerError
		}
	}
	return metrics, nil
}

func (metrics *MigrationMetrics) initMetrics() {
	metrics.runsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespaceConstant,
		Name:      "runs_started_total",
		Help:      "Total number of migration runs started",
	})

	metrics.runsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "runs_finished_total",
			Help:      "Total number of migration runs that reached a terminal status",
		},
		[]string{labelStatusConstant}, // status: completed, error
	)

	metrics.runActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespaceConstant,
		Name:      "run_active",
		Help:      "Whether a migration run is in progress",
	})

	metrics.itemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "items_total",
			Help:      "Total number of namespaces and projects processed",
		},
		[]string{labelKindConstant, labelOutcomeConstant},
	)

	metrics.itemsExpected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "items_expected",
			Help:      "Estimated number of namespaces and projects in the current run",
		},
		[]string{labelKindConstant},
	)

	metrics.transfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "transfers_total",
			Help:      "Total number of repository transfers by outcome",
		},
		[]string{labelOutcomeConstant},
	)
}

// Registry returns the registry the metrics are registered with.
func (metrics *MigrationMetrics) Registry() *prometheus.Registry {
	return metrics.registry
}

// ObserveTransition updates the metrics from a job state change.
func (metrics *MigrationMetrics) ObserveTransition(transition jobstate.Transition) {
	if transition.Status != transition.PreviousStatus {
		switch {
		case transition.Status == jobstate.StatusInitializing:
			metrics.runsStartedTotal.Inc()
		case transition.Status.IsTerminal() && !transition.PreviousStatus.IsTerminal():
			metrics.runsFinishedTotal.WithLabelValues(string(transition.Status)).Inc()
		}
		if transition.Status.IsActive() {
			metrics.runActive.Set(1)
		} else {
			metrics.runActive.Set(0)
		}
		if transition.Status == jobstate.StatusInitializing {
			metrics.itemsExpected.Reset()
		}
	}

	update := transition.Update
	if update.Stat == jobstate.StatNone {
		return
	}
	kind := string(update.Stat)
	if update.SetTotal {
		metrics.itemsExpected.WithLabelValues(kind).Set(float64(update.Total))
	}
	switch update.Progress {
	case jobstate.ProgressCompleted:
		metrics.itemsTotal.WithLabelValues(kind, outcomeCompletedValueConstant).Inc()
	case jobstate.ProgressFailed:
		metrics.itemsTotal.WithLabelValues(kind, outcomeFailedValueConstant).Inc()
	}
}

// RecordTransfer counts a finished repository transfer by its outcome name.
func (metrics *MigrationMetrics) RecordTransfer(outcome string) {
	metrics.transfersTotal.WithLabelValues(outcome).Inc()
}
