package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Persistence targets.
const (
	TargetCache   = "cache"
	TargetRemote  = "remote"
	TargetWebhook = "webhook"
)

// Outcomes.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the service counters on a private registry so tests can
// create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	ActionsApplied  *prometheus.CounterVec
	ActionsRejected *prometheus.CounterVec
	PersistWrites   *prometheus.CounterVec
	SavesCoalesced  prometheus.Counter
	Transactions    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ActionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kasbon",
			Name:      "actions_applied_total",
			Help:      "Actions applied to the ledger, by action type.",
		}, []string{"type"}),
		ActionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kasbon",
			Name:      "actions_rejected_total",
			Help:      "Actions that left the state unchanged with an error, by action type.",
		}, []string{"type"}),
		PersistWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kasbon",
			Name:      "persist_writes_total",
			Help:      "State writes by target and result.",
		}, []string{"target", "result"}),
		SavesCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kasbon",
			Name:      "persist_saves_coalesced_total",
			Help:      "Snapshots replaced by a newer one before the remote save fired.",
		}),
		Transactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kasbon",
			Name:      "transactions",
			Help:      "Number of loan transactions in the current state.",
		}),
	}
	m.registry.MustRegister(
		m.ActionsApplied,
		m.ActionsRejected,
		m.PersistWrites,
		m.SavesCoalesced,
		m.Transactions,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveAction counts a dispatch outcome.
func (m *Metrics) ObserveAction(actionType string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ActionsRejected.WithLabelValues(actionType).Inc()
		return
	}
	m.ActionsApplied.WithLabelValues(actionType).Inc()
}

// ObserveWrite counts a persistence attempt.
func (m *Metrics) ObserveWrite(target string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.PersistWrites.WithLabelValues(target, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
