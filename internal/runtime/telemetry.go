// Package runtime carries process-level plumbing: the metrics registry and
// its HTTP listener.
package runtime

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the instruments exported by the research pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// ProviderCalls counts search-provider invocations by provider and
	// outcome (success|failure).
	ProviderCalls *prometheus.CounterVec
	// RunDuration observes scheduled-run wall time by terminal status.
	RunDuration *prometheus.HistogramVec
	// ActiveJobs tracks the number of registered recurring jobs.
	ActiveJobs prometheus.Gauge
}

// NewMetrics builds a fresh registry with all pipeline instruments
// registered. Each caller gets its own registry so tests stay isolated.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sira",
			Name:      "provider_calls_total",
			Help:      "Search provider invocations by provider and outcome.",
		}, []string{"provider", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sira",
			Name:      "run_duration_seconds",
			Help:      "Scheduled research run duration by terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"status"}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sira",
			Name:      "active_jobs",
			Help:      "Recurring jobs currently registered with the scheduler.",
		}),
	}
	reg.MustRegister(m.ProviderCalls, m.RunDuration, m.ActiveJobs)
	return m
}

// Serve exposes /metrics on the given port. It blocks, so callers run it in
// a goroutine.
func (m *Metrics) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
