// Package metrics exposes Prometheus instruments for the agent and helper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempo_deck_refresh_total",
		Help: "Signal refreshes by trigger and outcome",
	}, []string{"trigger", "outcome"}) // outcome=ok|error|throttled|dropped

	lastFetch = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempo_deck_last_fetch_timestamp_seconds",
		Help: "Unix time of the last attempted fetch",
	})

	statsFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempo_deck_stats_fallback_total",
		Help: "Secondary stats fetches after an empty primary",
	}, []string{"outcome"})

	rendersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempo_deck_renders_total",
		Help: "Surface renders sent to the host",
	})

	surfacesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempo_deck_surfaces",
		Help: "Currently registered surfaces",
	})

	busErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempo_deck_bus_errors_total",
		Help: "Host bus failures by direction",
	}, []string{"direction"}) // direction=in|out

	upstreamTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempo_helper_upstream_requests_total",
		Help: "Helper requests to the upstream Tempo sources by source and outcome",
	}, []string{"source", "outcome"})
)

// RecordRefresh counts one refresh attempt.
func RecordRefresh(trigger, outcome string) {
	refreshTotal.WithLabelValues(trigger, outcome).Inc()
}

// SetLastFetch records the time of the last fetch.
func SetLastFetch(t time.Time) {
	if t.IsZero() {
		return
	}
	lastFetch.Set(float64(t.Unix()))
}

// RecordStatsFallback counts one secondary stats fetch.
func RecordStatsFallback(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	statsFallbackTotal.WithLabelValues(outcome).Inc()
}

// IncRenders counts one render sent to the host.
func IncRenders() {
	rendersTotal.Inc()
}

// SetSurfaces records the number of registered surfaces.
func SetSurfaces(n int) {
	surfacesRegistered.Set(float64(n))
}

// IncBusError counts a bus failure. direction is "in" or "out".
func IncBusError(direction string) {
	busErrors.WithLabelValues(direction).Inc()
}

// RecordUpstream counts one helper request to an upstream source.
func RecordUpstream(source string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	upstreamTotal.WithLabelValues(source, outcome).Inc()
}
