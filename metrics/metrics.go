package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collabcanvas"

var (
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_operations_total",
		Help:      "Object store operations by operation and result.",
	}, []string{"op", "result"})

	ChangesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "changes_published_total",
		Help:      "Change events published to the broker.",
	}, []string{"type"})

	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_subscribers",
		Help:      "Open websocket change feed connections.",
	})

	MutationsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutations_applied_total",
		Help:      "Optimistic mutations applied locally.",
	}, []string{"op"})

	MutationRollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutation_rollbacks_total",
		Help:      "Optimistic mutations rolled back after a rejected persist.",
	}, []string{"op"})

	ReconciledEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciled_events_total",
		Help:      "Realtime events by type and the action taken.",
	}, []string{"type", "action"})

	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_reconnects_total",
		Help:      "Change feed re-subscriptions after a transport error.",
	})
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func Handler() http.Handler {
	return promhttp.Handler()
}
