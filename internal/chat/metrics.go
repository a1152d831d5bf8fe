package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics owned by the chat pipeline.
type Metrics struct {
	// retrievalDegraded counts turns that continued without recalled history
	// because the similarity search failed.
	retrievalDegraded prometheus.Counter

	// truncatedReplies counts streamed replies that ended without an end frame.
	truncatedReplies prometheus.Counter

	// persisted counts record attempts by outcome: ok, error or skipped.
	persisted *prometheus.CounterVec
}

// NewMetrics registers the chat metrics against reg. A nil reg uses a fresh
// private registry so the metrics still work but are not exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		retrievalDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragchat",
			Subsystem: "chat",
			Name:      "retrieval_degraded_total",
			Help:      "Chat turns that continued without recalled history after a retrieval failure.",
		}),

		truncatedReplies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragchat",
			Subsystem: "chat",
			Name:      "truncated_replies_total",
			Help:      "Streamed replies that ended without a finish frame.",
		}),

		persisted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragchat",
			Subsystem: "store",
			Name:      "records_total",
			Help:      "Message record attempts, partitioned by outcome.",
		}, []string{"outcome"}),
	}
}

// ObservePersist counts one record attempt. It matches sink.Observer.
func (m *Metrics) ObservePersist(outcome string) {
	m.persisted.WithLabelValues(outcome).Inc()
}
