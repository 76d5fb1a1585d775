// Package metrics exposes Prometheus counters and gauges for the scheduler
// and pipeline engines, registered against their own registry so tests can
// construct isolated instances rather than fighting over the global
// DefaultRegisterer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter and gauge taskrunner records.
type Metrics struct {
	Registry *prometheus.Registry

	JobFires      *prometheus.CounterVec
	JobFiresDropped *prometheus.CounterVec
	PipelineRuns  *prometheus.CounterVec
	HTTPActionCalls *prometheus.CounterVec
	ArmedJobs     prometheus.Gauge
}

// New constructs a Metrics bundle on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		JobFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskrunner",
			Name:      "job_fires_total",
			Help:      "Total number of scheduled job firings dispatched, by job kind and outcome.",
		}, []string{"kind", "outcome"}),
		JobFiresDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskrunner",
			Name:      "job_fires_dropped_total",
			Help:      "Total number of firings dropped because the previous invocation was still in flight.",
		}, []string{"kind"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskrunner",
			Name:      "pipeline_runs_total",
			Help:      "Total number of task-group pipeline runs, by terminal status.",
		}, []string{"status"}),
		HTTPActionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskrunner",
			Name:      "http_action_calls_total",
			Help:      "Total number of http_request callable invocations, by success.",
		}, []string{"success"}),
		ArmedJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskrunner",
			Name:      "armed_jobs",
			Help:      "Number of tasks and task groups currently armed against the scheduler.",
		}),
	}

	reg.MustRegister(m.JobFires, m.JobFiresDropped, m.PipelineRuns, m.HTTPActionCalls, m.ArmedJobs)
	return m
}

// Handler returns the Prometheus scrape endpoint for this bundle.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
