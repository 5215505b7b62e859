package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnectionsAccepted.Inc()
	m.PassiveEvictions.Inc()
	m.ActiveEvictions.Inc()
	m.CommandsExecuted.WithLabelValues("GET").Inc()
	m.KeyCount.Set(3)

	require.Equal(t, float64(1), counterValue(t, m.ConnectionsAccepted))
	require.Equal(t, float64(1), counterValue(t, m.PassiveEvictions))
	require.Equal(t, float64(1), counterValue(t, m.ActiveEvictions))
}

func TestNewWithNilRegistererStillWorks(t *testing.T) {
	m := New(nil)
	m.KeyCount.Set(5)
	require.NotNil(t, m)
}
