package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics records per-run measurements. A run is a short-lived batch job, so
// the registry is pushed to a Pushgateway instead of being scraped.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec
	runs          *prometheus.CounterVec
	videoSeconds  prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewMetrics creates the run metrics on a fresh registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "biomedtube_stage_duration_seconds",
				Help:    "Wall time of each pipeline stage.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage", "outcome"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "biomedtube_fallbacks_total",
				Help: "Lookups that were replaced by a local fallback.",
			},
			[]string{"component"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "biomedtube_runs_total",
				Help: "Finished pipeline runs by status.",
			},
			[]string{"status"},
		),
		videoSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "biomedtube_video_duration_seconds",
			Help: "Duration of the last rendered video.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "biomedtube_last_success_timestamp_seconds",
			Help: "Unix time of the last successful upload.",
		}),
	}

	for _, c := range []prometheus.Collector{m.stageDuration, m.fallbacks, m.runs, m.videoSeconds, m.lastSuccess} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("telemetry: register metric: %w", err)
		}
	}
	return m, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records how long stage took and whether it failed.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// Fallback counts a lookup that fell back ("topic" or "asset").
func (m *Metrics) Fallback(component string) {
	m.fallbacks.WithLabelValues(component).Inc()
}

// RunFinished records the final status of a run.
func (m *Metrics) RunFinished(status string, video time.Duration, at time.Time) {
	m.runs.WithLabelValues(status).Inc()
	if video > 0 {
		m.videoSeconds.Set(video.Seconds())
	}
	if status == "succeeded" {
		m.lastSuccess.Set(float64(at.Unix()))
	}
}

// Push sends the registry to the Pushgateway at url under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(m.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("telemetry: push metrics: %w", err)
	}
	return nil
}
