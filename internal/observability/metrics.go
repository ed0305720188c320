package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of one process.
// Every method is safe on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// --- Ledger ---
	LedgerAppends        *prometheus.CounterVec
	LedgerAppendFailures *prometheus.CounterVec
	LedgerReplayed       prometheus.Counter

	// --- Simulation ---
	Simulations      *prometheus.CounterVec
	SimulationTrials prometheus.Histogram

	// --- Orchestration ---
	Evaluations          *prometheus.CounterVec
	TokenSpendRejections prometheus.Counter
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		LedgerAppends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskledger_ledger_appends_total",
			Help: "Entries durably appended to the ledger",
		}, []string{"action_type", "status"}),

		LedgerAppendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskledger_ledger_append_failures_total",
			Help: "Append attempts that failed, by stage",
		}, []string{"stage"}),

		LedgerReplayed: f.NewCounter(prometheus.CounterOpts{
			Name: "riskledger_ledger_replayed_entries_total",
			Help: "Entries replayed into the mirror during rehydration",
		}),

		Simulations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskledger_simulations_total",
			Help: "Completed risk simulations by zone",
		}, []string{"zone"}),

		SimulationTrials: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskledger_simulation_trials",
			Help:    "Trials run per simulation",
			Buckets: []float64{100, 1_000, 10_000, 100_000, 1_000_000},
		}),

		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskledger_evaluations_total",
			Help: "Orchestrated evaluations by outcome",
		}, []string{"outcome"}),

		TokenSpendRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "riskledger_token_spend_rejections_total",
			Help: "Token spends refused for insufficient balance",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current metric values to path in the Prometheus
// text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ObserveAppend counts a durable append.
func (m *Metrics) ObserveAppend(actionType, status string) {
	if m == nil {
		return
	}
	m.LedgerAppends.WithLabelValues(actionType, status).Inc()
}

// ObserveAppendFailure counts an append that failed at stage.
func (m *Metrics) ObserveAppendFailure(stage string) {
	if m == nil {
		return
	}
	m.LedgerAppendFailures.WithLabelValues(stage).Inc()
}

// ObserveReplay counts n replayed entries.
func (m *Metrics) ObserveReplay(n int) {
	if m == nil {
		return
	}
	m.LedgerReplayed.Add(float64(n))
}

// ObserveSimulation records a finished simulation.
func (m *Metrics) ObserveSimulation(zone string, trials int) {
	if m == nil {
		return
	}
	m.Simulations.WithLabelValues(zone).Inc()
	m.SimulationTrials.Observe(float64(trials))
}

// ObserveEvaluation counts an orchestrated evaluation by outcome.
func (m *Metrics) ObserveEvaluation(outcome string) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(outcome).Inc()
}

// ObserveSpendRejection counts a refused token spend.
func (m *Metrics) ObserveSpendRejection() {
	if m == nil {
		return
	}
	m.TokenSpendRejections.Inc()
}
