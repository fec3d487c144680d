// Package metrics exposes prometheus collectors for the filter server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ironsheep/image-filter-server/internal/filters"
)

// Metrics owns a registry and the server's collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Requests counts finished exchanges by route and final status.
	Requests *prometheus.CounterVec

	// FilterDuration tracks time spent in each filter.
	FilterDuration *prometheus.HistogramVec

	// ActiveSessions is the number of open socket sessions.
	ActiveSessions prometheus.Gauge

	// UsageLogErrors counts failed usage log writes.
	UsageLogErrors prometheus.Counter
}

// New creates the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_filter_requests_total",
				Help: "Finished socket exchanges by route and status",
			},
			[]string{"route", "status"},
		),
		FilterDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "image_filter_filter_duration_seconds",
				Help:    "Time spent applying a single filter",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 15, 60, 300},
			},
			[]string{"filter", "outcome"},
		),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "image_filter_active_sessions",
			Help: "Number of open socket sessions",
		}),
		UsageLogErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_filter_usage_log_errors_total",
			Help: "Usage log writes that failed",
		}),
	}
	m.registry.MustRegister(
		m.Requests,
		m.FilterDuration,
		m.ActiveSessions,
		m.UsageLogErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hook returns a pipeline hook observing FilterDuration.
func (m *Metrics) Hook() filters.Hook { return pipelineHook{m: m} }

type pipelineHook struct {
	m *Metrics
}

func (pipelineHook) BeforeFilter(context.Context, int, filters.Kind, []byte) {}

func (h pipelineHook) AfterFilter(_ context.Context, _ int, kind filters.Kind, _ []byte, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.m.FilterDuration.WithLabelValues(kind.String(), outcome).Observe(d.Seconds())
}
