package testutil

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// CounterValue returns the current value for a CounterVec label set.
func CounterValue(tb testing.TB, vec *prometheus.CounterVec, labels ...string) float64 {
	tb.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(tb, err)
	return write(tb, counter).GetCounter().GetValue()
}

// Value returns the current value of an unlabelled counter or gauge.
func Value(tb testing.TB, metric prometheus.Metric) float64 {
	tb.Helper()

	m := write(tb, metric)
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return m.GetGauge().GetValue()
}

func write(tb testing.TB, metric prometheus.Metric) *dto.Metric {
	tb.Helper()

	var m dto.Metric
	require.NoError(tb, metric.Write(&m))
	return &m
}
