package promhooks

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promclient "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	m, ok := c.(prometheus.Metric)
	require.True(t, ok)
	var out promclient.Metric
	require.NoError(t, m.Write(&out))
	return out.GetCounter().GetValue()
}

func TestCounters(t *testing.T) {
	h := New(prometheus.NewRegistry(), "test")

	h.ConnectionEstablished("a:11211", 0)
	h.ConnectionLost("a:11211", errors.New("eof"))
	h.ConnectionEstablished("a:11211", 1)
	h.SelfHeal("k", "corrupt")
	h.SelfHeal("k", "corrupt")
	h.SelfHeal("k", "miss")
	h.RemoteFailure("get", "k", errors.New("timeout"))
	h.TrackerFallback("s", errors.New("boom"))

	require.Equal(t, 2.0, value(t, h.connections.WithLabelValues("a:11211", "established")))
	require.Equal(t, 1.0, value(t, h.connections.WithLabelValues("a:11211", "lost")))
	require.Equal(t, 2.0, value(t, h.selfHeals.WithLabelValues("corrupt")))
	require.Equal(t, 1.0, value(t, h.selfHeals.WithLabelValues("miss")))
	require.Equal(t, 1.0, value(t, h.failures.WithLabelValues("get")))
	require.Equal(t, 0.0, value(t, h.failures.WithLabelValues("set")))
	require.Equal(t, 1.0, value(t, h.fallbacks))
}

func TestRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg, "")
	h.TrackerFallback("s", nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "pagestore_tracker_fallbacks_total")

	require.Panics(t, func() { New(reg, "") })
}
