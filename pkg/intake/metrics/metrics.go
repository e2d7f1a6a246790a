// Package metrics exports mint and ingestion counters for Prometheus.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/tendant/video-intake/pkg/intake"
)

const namespace = "video_intake"

// Metrics implements intake.Observer and api.MintObserver on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry
	mints    *prometheus.CounterVec
	events   *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_intents_total",
			Help:      "Upload intent requests by result.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_events_total",
			Help:      "Storage notifications by terminal state and skip reason.",
		}, []string{"state", "reason"}),
	}
	m.registry.MustRegister(
		m.mints,
		m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveMint(result string) {
	m.mints.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOutcome(out intake.Outcome) {
	m.events.WithLabelValues(string(out.State), string(out.Reason)).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends the current counters to a Prometheus Pushgateway under job,
// replacing what was pushed for job before. Short-lived ingest runs have no
// scrape endpoint and report this way.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
