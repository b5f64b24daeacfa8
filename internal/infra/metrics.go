package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service-level Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	WSConnections   *prometheus.GaugeVec
	TasksSubmitted  prometheus.Counter
	TasksCompleted  prometheus.Counter
	TasksFailed     prometheus.Counter
	ArchiveDownload prometheus.Counter
}

// NewMetrics registers and returns the service collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pastexam",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, labeled by method and status class.",
		}, []string{"method", "status"}),
		WSConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pastexam",
			Name:      "websocket_connections",
			Help:      "Currently open websocket connections by kind.",
		}, []string{"kind"}),
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pastexam",
			Name:      "exam_tasks_submitted_total",
			Help:      "Practice exam generation tasks enqueued.",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pastexam",
			Name:      "exam_tasks_completed_total",
			Help:      "Practice exam generation tasks that finished successfully.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pastexam",
			Name:      "exam_tasks_failed_total",
			Help:      "Practice exam generation tasks that ended in failure.",
		}),
		ArchiveDownload: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pastexam",
			Name:      "archive_downloads_total",
			Help:      "Archive download URL requests.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.WSConnections,
		m.TasksSubmitted,
		m.TasksCompleted,
		m.TasksFailed,
		m.ArchiveDownload,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
