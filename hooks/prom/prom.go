// Package promhooks exports store events as Prometheus counters.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/pagestore"
)

type Hooks struct {
	connections *prometheus.CounterVec
	selfHeals   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	fallbacks   prometheus.Counter
}

var _ pagestore.Hooks = (*Hooks)(nil)

// New registers the counters on reg under the given namespace ("" is allowed).
// A nil reg uses prometheus.DefaultRegisterer. Registering twice on the same
// registerer panics, as promauto does.
func New(reg prometheus.Registerer, namespace string) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Hooks{
		connections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pagestore_connection_events_total",
			Help:      "Remote store connection state changes.",
		}, []string{"addr", "event" /* established | lost */}),
		selfHeals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pagestore_self_heals_total",
			Help:      "Entries dropped on read.",
		}, []string{"reason"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pagestore_remote_failures_total",
			Help:      "Remote operations that failed and were degraded to a miss or no-op.",
		}, []string{"op"}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pagestore_tracker_fallbacks_total",
			Help:      "Session key sets created through the fallback path.",
		}),
	}
}

func (h *Hooks) ConnectionEstablished(addr string, _ int) {
	h.connections.WithLabelValues(addr, "established").Inc()
}

func (h *Hooks) ConnectionLost(addr string, _ error) {
	h.connections.WithLabelValues(addr, "lost").Inc()
}

func (h *Hooks) SelfHeal(_, reason string) { h.selfHeals.WithLabelValues(reason).Inc() }

func (h *Hooks) RemoteFailure(op, _ string, _ error) { h.failures.WithLabelValues(op).Inc() }

func (h *Hooks) TrackerFallback(string, error) { h.fallbacks.Inc() }
