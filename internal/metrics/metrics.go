// Package metrics exposes Prometheus counters for the faucet conversation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "faucetbot"

// Message outcomes.
const (
	OutcomeIgnored = "ignored"
	OutcomeHandled = "handled"
	OutcomeNoop    = "noop"
	OutcomeFailed  = "failed"
)

// Catalog lookup sources.
const (
	SourceCache   = "cache"
	SourceRefresh = "refresh"
	SourceError   = "error"
)

// Drip results.
const (
	DripOK       = "ok"
	DripRejected = "rejected"
	DripError    = "error"
)

// Metrics holds the bot's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	messages *prometheus.CounterVec
	catalog  *prometheus.CounterVec
	drips    *prometheus.CounterVec
	rejected prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by outcome.",
		}, []string{"outcome"}),
		catalog: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lookups_total",
			Help:      "Network catalog lookups by source.",
		}, []string{"source"}),
		drips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drips_total",
			Help:      "Token dispense requests by result.",
		}, []string{"result"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsupported_network_total",
			Help:      "Network choices that matched no catalog entry.",
		}),
	}
	m.registry.MustRegister(m.messages, m.catalog, m.drips, m.rejected)
	return m
}

// Message counts one inbound message.
func (m *Metrics) Message(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

// CatalogLookup counts one catalog read.
func (m *Metrics) CatalogLookup(source string) {
	if m == nil {
		return
	}
	m.catalog.WithLabelValues(source).Inc()
}

// Drip counts one dispense request.
func (m *Metrics) Drip(result string) {
	if m == nil {
		return
	}
	m.drips.WithLabelValues(result).Inc()
}

// UnsupportedNetwork counts one rejected network choice.
func (m *Metrics) UnsupportedNetwork() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// Registry returns the registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
