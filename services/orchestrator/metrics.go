package orchestrator

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// RunMetrics turns a finished report into Prometheus gauges.
type RunMetrics struct {
	registry *prometheus.Registry
	stage    *prometheus.GaugeVec
	run      prometheus.Gauge
	success  prometheus.Gauge
	finished prometheus.Gauge
}

// NewRunMetrics returns gauges registered on a private registry.
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		stage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cloudbench",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each stage of the last run.",
		}, []string{"stage", "action", "status"}),
		run: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudbench",
			Name:      "run_duration_seconds",
			Help:      "Total wall time of the last run.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudbench",
			Name:      "run_success",
			Help:      "1 when every stage of the last run succeeded.",
		}),
		finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudbench",
			Name:      "run_finished_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	m.registry.MustRegister(m.stage, m.run, m.success, m.finished)
	return m
}

// Registry exposes the underlying registry.
func (m *RunMetrics) Registry() *prometheus.Registry { return m.registry }

// Observe records report. Stages that never ran are skipped.
func (m *RunMetrics) Observe(report *BenchmarkReport) {
	if report == nil {
		return
	}
	m.stage.Reset()
	for _, st := range report.Stages {
		if st.EndTime == nil {
			continue
		}
		m.stage.WithLabelValues(st.Name, st.Action, string(st.Status)).Set(st.Duration().Seconds())
	}
	m.run.Set(report.Total.Seconds())
	if report.Succeeded() {
		m.success.Set(1)
	} else {
		m.success.Set(0)
	}
	m.finished.Set(float64(report.FinishedAt.Unix()))
}

// Push sends the gauges to a Pushgateway under job, grouped by provider.
func (m *RunMetrics) Push(ctx context.Context, url, job string, report *BenchmarkReport) error {
	if url == "" {
		return errors.New("pushgateway url is required")
	}
	if job == "" {
		job = "cloudbench"
	}
	pusher := push.New(url, job).Gatherer(m.registry)
	if report != nil && report.Provider != "" {
		pusher = pusher.Grouping("provider", report.Provider)
	}
	return pusher.PushContext(ctx)
}
