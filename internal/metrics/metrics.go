package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ricirt/task-insights/internal/broker"
	"github.com/ricirt/task-insights/internal/domain"
	"github.com/ricirt/task-insights/internal/worker"
)

// Outcome label values for MessagesProcessed.
const (
	OutcomeAcked        = "acked"
	OutcomeRequeued     = "requeued"
	OutcomeDeadLettered = "dead_lettered"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	MessagesProcessed *prometheus.CounterVec
	TasksClassified   *prometheus.CounterVec
	ProcessingLatency prometheus.Histogram
	QueueDepth        prometheus.Gauge
	QueueConsumers    prometheus.Gauge
	BrokerConnects    *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_messages_processed_total",
			Help: "Task events settled by the consumer, by outcome and failure reason.",
		}, []string{"outcome", "reason"}),

		TasksClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasks_classified_total",
			Help: "Tasks analysed and acknowledged, by category and sentiment.",
		}, []string{"category", "sentiment"}),

		ProcessingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "task_processing_seconds",
			Help:    "Time from receiving a task event to its ack.",
			Buckets: prometheus.DefBuckets,
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "task_queue_depth",
			Help: "Ready messages in the task queue at the last sample.",
		}),
		QueueConsumers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "task_queue_consumers",
			Help: "Consumers attached to the task queue at the last sample.",
		}),

		BrokerConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_connect_attempts_total",
			Help: "Broker connect attempts, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.MessagesProcessed,
		m.TasksClassified,
		m.ProcessingLatency,
		m.QueueDepth,
		m.QueueConsumers,
		m.BrokerConnects,
	)

	return m
}

// WorkerHooks returns the callbacks expected by worker.Consumer.
// Centralises the prometheus observation calls so the worker stays import-free.
func (m *Metrics) WorkerHooks() worker.Hooks {
	return worker.Hooks{
		OnAcked: func(res *domain.AnalysisResult, latency time.Duration) {
			m.MessagesProcessed.WithLabelValues(OutcomeAcked, "").Inc()
			m.ProcessingLatency.Observe(latency.Seconds())
			if res != nil {
				m.TasksClassified.WithLabelValues(string(res.Classification.Category), string(res.Classification.Sentiment)).Inc()
			}
		},
		OnRequeued: func(cause error) {
			m.MessagesProcessed.WithLabelValues(OutcomeRequeued, Reason(cause)).Inc()
		},
		OnDeadLettered: func(cause error) {
			m.MessagesProcessed.WithLabelValues(OutcomeDeadLettered, Reason(cause)).Inc()
		},
	}
}

// OnConnectAttempt matches broker.Manager.OnAttempt.
func (m *Metrics) OnConnectAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.BrokerConnects.WithLabelValues(result).Inc()
}

// OnQueueSample updates the queue gauges from a sampler reading.
func (m *Metrics) OnQueueSample(s broker.QueueStats) {
	m.QueueDepth.Set(float64(s.Messages))
	m.QueueConsumers.Set(float64(s.Consumers))
}

// Reason buckets a processing error into a low-cardinality label.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrMalformedEvent), errors.Is(err, domain.ErrMissingTaskID):
		return "malformed"
	default:
		return "error"
	}
}
