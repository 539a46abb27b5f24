package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink mirrors pkg/stats.Collector's events into a Prometheus
// registry, giving the broker a pull-based /metrics endpoint alongside
// the push-based Graphite pipeline. It implements stats.Sink.
type PrometheusSink struct {
	registry *prometheus.Registry

	received   *prometheus.CounterVec
	completed  *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	processing *prometheus.CounterVec
	queued     prometheus.Gauge
}

// NewPrometheusSink registers a fresh set of collectors on a new registry.
func NewPrometheusSink() *PrometheusSink {
	s := &PrometheusSink{
		registry: prometheus.NewRegistry(),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbroker_tasks_received_total",
			Help: "Tasks submitted, by pool.",
		}, []string{"pool"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbroker_tasks_completed_total",
			Help: "Tasks reported complete by a worker, by pool, regardless of outcome status.",
		}, []string{"pool"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbroker_tasks_duplicates_total",
			Help: "Submissions suppressed by unique=true, by pool.",
		}, []string{"pool"}),
		processing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbroker_task_processing_seconds_total",
			Help: "Sum of completed tasks' processing durations, by pool.",
		}, []string{"pool"}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskbroker_tasks_queued",
			Help: "Current pending task count.",
		}),
	}

	s.registry.MustRegister(s.received, s.completed, s.duplicates, s.processing, s.queued)
	return s
}

// Registry exposes the underlying registry for promhttp.HandlerFor.
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

func (s *PrometheusSink) TaskReceived(pool string)  { s.received.WithLabelValues(pool).Inc() }
func (s *PrometheusSink) TaskCompleted(pool string) { s.completed.WithLabelValues(pool).Inc() }
func (s *PrometheusSink) TaskDuplicate(pool string) { s.duplicates.WithLabelValues(pool).Inc() }

func (s *PrometheusSink) TaskProcessing(pool string, seconds int64) {
	s.processing.WithLabelValues(pool).Add(float64(seconds))
}

func (s *PrometheusSink) TasksQueued(n int) {
	s.queued.Set(float64(n))
}
