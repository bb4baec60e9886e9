package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	progressUpdatesTotal *prometheus.CounterVec
	webhookFailuresTotal *prometheus.CounterVec
	pixelsProcessedTotal *prometheus.CounterVec
	bytesInTotal         *prometheus.CounterVec
	bytesOutTotal        *prometheus.CounterVec
	computeTimeMSTotal   *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	operation := []string{"operation"}
	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshift_worker_jobs_total",
			Help: "Worker jobs by operation, source type and outcome.",
		}, []string{"operation", "source_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelshift_worker_job_duration_seconds",
			Help:    "Wall time of each worker job attempt.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
		}, []string{"operation", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelshift_worker_active_jobs",
			Help: "Jobs currently holding a processing slot.",
		}),
		progressUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshift_worker_progress_updates_total",
			Help: "Progress checkpoints reported by running jobs.",
		}, operation),
		webhookFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshift_worker_webhook_failures_total",
			Help: "Webhook deliveries that failed after all attempts.",
		}, []string{"event"}),
		pixelsProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshift_usage_pixels_processed_total",
			Help: "Pixels in the outputs of successful jobs.",
		}, operation),
		bytesInTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshift_usage_bytes_in_total",
			Help: "Source bytes read by successful jobs.",
		}, operation),
		bytesOutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshift_usage_bytes_out_total",
			Help: "Output bytes written by successful jobs.",
		}, operation),
		computeTimeMSTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshift_usage_compute_time_ms_total",
			Help: "Compute time in milliseconds across successful jobs.",
		}, operation),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.progressUpdatesTotal,
		m.webhookFailuresTotal,
		m.pixelsProcessedTotal,
		m.bytesInTotal,
		m.bytesOutTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
