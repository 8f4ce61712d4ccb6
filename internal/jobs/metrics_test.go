package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	assert.NoError(t, m.Track("mail:send").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("mail:send").End(boom), boom)

	assert.Equal(t, 1.0, counterValue(t, reg, "voyager_jobs_total", map[string]string{"job": "mail:send", "status": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "voyager_jobs_failures_total", map[string]string{"job": "mail:send"}))
}

func TestRecordSettlement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordSettlement("income_created")
	m.RecordSettlement("income_created")
	m.RecordSettlement("")
	assert.Equal(t, 2.0, counterValue(t, reg, "voyager_settlements_total", map[string]string{"outcome": "income_created"}))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.RecordSettlement("failed") })
}
