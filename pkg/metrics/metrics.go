package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "algol"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"

	Publisher    = "publisher"
	Subscription = "subscription"
	Queue        = "queue"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple broker instances.
type Labels struct {
	App           string // Application name passed to Broker.Init
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.App != "" {
		labels["app"] = l.App
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Registry state
	exchanges prometheus.Gauge
	errors    *prometheus.CounterVec

	// Publishing
	published       *prometheus.CounterVec   // by exchange, status
	publishDuration *prometheus.HistogramVec // by exchange

	// Queues
	queueDepth *prometheus.GaugeVec // by exchange, queue

	// Subscriptions and delivery
	activeSubscriptions prometheus.Gauge
	delivered           *prometheus.CounterVec   // by exchange, queue, status
	deliveryDuration    *prometheus.HistogramVec // by exchange
	messagesInFlight    prometheus.Gauge
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., app), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		exchanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "exchanges",
			Help:      "Number of exchanges currently registered in the broker",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "messages_total",
			Help:      "Total publish calls by exchange and status",
		}, []string{"exchange", "status"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "duration_seconds",
			Help:      "Time spent routing and enqueueing a published message",
			// In-memory routing is fast; buckets start at 10µs.
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"exchange"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Queue,
			Name:      "depth",
			Help:      "Number of messages waiting in a queue",
		}, []string{"exchange", "queue"}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subscription,
			Name:      "active",
			Help:      "Number of subscription workers currently running",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subscription,
			Name:      "messages_delivered_total",
			Help:      "Total messages handed to handlers by exchange, queue and status",
		}, []string{"exchange", "queue", "status"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subscription,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent inside the handler for a single message",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"exchange"}),
		messagesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subscription,
			Name:      "messages_in_flight",
			Help:      "Number of messages currently being handled",
		}),
	}

	err := errors.Join(
		reg.Register(m.exchanges),
		reg.Register(m.errors),
		reg.Register(m.published),
		reg.Register(m.publishDuration),
		reg.Register(m.queueDepth),
		reg.Register(m.activeSubscriptions),
		reg.Register(m.delivered),
		reg.Register(m.deliveryDuration),
		reg.Register(m.messagesInFlight),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Error type constants for errors_total.
const (
	ErrTypeHandler    = "handler"
	ErrTypePanic      = "handler_panic"
	ErrTypeQueueFull  = "queue_full"
	ErrTypeAttach     = "worker_attach"
	ErrTypeBacklog    = "backlog"
	ErrTypeDrainStall = "drain_timeout"
)

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// SetExchanges sets the number of registered exchanges.
func (m *Metrics) SetExchanges(n int) {
	if m == nil {
		return
	}
	m.exchanges.Set(float64(n))
}

// RecordPublish records a publish outcome with its routing duration.
// Pass nil error for successful publishes, non-nil for failures.
func (m *Metrics) RecordPublish(exchange string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.published.WithLabelValues(exchange, status).Inc()
	m.publishDuration.WithLabelValues(exchange).Observe(durationSeconds)
}

// SetQueueDepth sets the pending message gauge for a queue.
func (m *Metrics) SetQueueDepth(exchange, queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(exchange, queue).Set(float64(depth))
}

// ResetQueueDepths drops every queue depth series, used when the broker is torn down.
func (m *Metrics) ResetQueueDepths() {
	if m == nil {
		return
	}
	m.queueDepth.Reset()
}

// DeleteQueueDepths drops the queue depth series of one exchange.
func (m *Metrics) DeleteQueueDepths(exchange string) {
	if m == nil {
		return
	}
	m.queueDepth.DeletePartialMatch(prometheus.Labels{"exchange": exchange})
}

// IncActiveSubscriptions increments the running subscription gauge.
func (m *Metrics) IncActiveSubscriptions() {
	if m == nil {
		return
	}
	m.activeSubscriptions.Inc()
}

// DecActiveSubscriptions decrements the running subscription gauge.
func (m *Metrics) DecActiveSubscriptions() {
	if m == nil {
		return
	}
	m.activeSubscriptions.Dec()
}

// RecordDelivery records a handler invocation outcome with duration.
func (m *Metrics) RecordDelivery(exchange, queue string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.delivered.WithLabelValues(exchange, queue, status).Inc()
	m.deliveryDuration.WithLabelValues(exchange).Observe(durationSeconds)
}

// RecordSkipped records a message consumed without reaching the handler.
func (m *Metrics) RecordSkipped(exchange, queue string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(exchange, queue, StatusSkipped).Inc()
}

// IncMessagesInFlight increments the in-flight message handling gauge.
func (m *Metrics) IncMessagesInFlight() {
	if m == nil {
		return
	}
	m.messagesInFlight.Inc()
}

// DecMessagesInFlight decrements the in-flight message handling gauge.
func (m *Metrics) DecMessagesInFlight() {
	if m == nil {
		return
	}
	m.messagesInFlight.Dec()
}
