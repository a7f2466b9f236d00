// Package metrics exposes Prometheus instrumentation for the replay server.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coregx/replay"
	"github.com/coregx/replay/model"
)

// Metrics holds the Prometheus collectors for the replay server.
type Metrics struct {
	DeliveryFailures *prometheus.CounterVec
	DeadLettered     prometheus.Counter
	Persisted        prometheus.Counter
	Backlog          *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replay",
			Name:      "delivery_failures_total",
			Help:      "Failed dispatch attempts by subject.",
		}, []string{"subject"}),
		DeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Name:      "dead_lettered_total",
			Help:      "Messages moved to dead_letter after exhausting retries.",
		}),
		Persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replay",
			Name:      "messages_persisted_total",
			Help:      "Messages durably recorded via the API.",
		}),
		Backlog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "replay",
			Name:      "messages",
			Help:      "Current message records by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(m.DeliveryFailures, m.DeadLettered, m.Persisted, m.Backlog)
	return m
}

// ObserveStats updates the backlog gauges from store statistics.
func (m *Metrics) ObserveStats(stats replay.Statistics) {
	for status, count := range stats.ByStatus {
		m.Backlog.WithLabelValues(string(status)).Set(float64(count))
	}
}

// Notifier wraps next with metric updates on every notification.
func (m *Metrics) Notifier(next replay.NotificationService) replay.NotificationService {
	return &notifier{metrics: m, next: next}
}

type notifier struct {
	metrics *Metrics
	next    replay.NotificationService
}

func (n *notifier) NotifyDeliveryFailure(ctx context.Context, record model.MessageRecord, err error) error {
	n.metrics.DeliveryFailures.WithLabelValues(record.Subject).Inc()
	return n.next.NotifyDeliveryFailure(ctx, record, err)
}

func (n *notifier) NotifyDeadLettered(ctx context.Context, record model.MessageRecord) error {
	n.metrics.DeadLettered.Inc()
	return n.next.NotifyDeadLettered(ctx, record)
}
