// Package metrics exposes the bot's Prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"

	"github.com/eddiefleurent/condor_bot/internal/osi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "condor_bot"

// Cycle outcomes used as the "outcome" label.
const (
	OutcomeEntered = "entered"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// Metrics holds the registry and every collector the bot updates.
type Metrics struct {
	registry *prometheus.Registry

	Cycles          *prometheus.CounterVec
	TradesEntered   prometheus.Counter
	SpreadsClosed   *prometheus.CounterVec
	GatewayErrors   *prometheus.CounterVec
	SearchExhausted *prometheus.CounterVec
	PositionsAtRisk prometheus.Gauge
	TradesToday     prometheus.Gauge
}

// New registers the bot collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.Cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Scheduler cycles by outcome.",
	}, []string{"outcome"})
	m.TradesEntered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_entered_total",
		Help:      "Iron condors handed to the order gateway.",
	})
	m.SpreadsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spreads_closed_total",
		Help:      "Positions closed by the risk evaluator, by side.",
	}, []string{"side"})
	m.GatewayErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_errors_total",
		Help:      "Failed gateway calls that skipped a cycle, by operation.",
	}, []string{"op"})
	m.SearchExhausted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_budget_exhausted_total",
		Help:      "Strike searches that ran out of steps, by search and side.",
	}, []string{"search", "side"})
	m.PositionsAtRisk = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "positions_at_risk",
		Help:      "1 when the last risk evaluation flagged a position at risk.",
	})
	m.TradesToday = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "trades_today",
		Help:      "Condors entered this session.",
	})

	reg.MustRegister(m.Cycles, m.TradesEntered, m.SpreadsClosed, m.GatewayErrors,
		m.SearchExhausted, m.PositionsAtRisk, m.TradesToday)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordClose counts a spread closed on side. It matches risk.WithCloseHook.
func (m *Metrics) RecordClose(side osi.OptionType) {
	m.SpreadsClosed.WithLabelValues(string(side)).Inc()
}

// SetAtRisk mirrors the evaluator's at-risk flag.
func (m *Metrics) SetAtRisk(atRisk bool) {
	if atRisk {
		m.PositionsAtRisk.Set(1)
		return
	}
	m.PositionsAtRisk.Set(0)
}
