package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestExpiryMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewExpiryMetrics(registry, Config{ServiceName: "test", Environment: "test"})

	finished := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.RecordRun(ExpirySweepStatusOK, 20*time.Millisecond, finished)
	m.RecordRun(ExpirySweepStatusError, time.Millisecond, finished.Add(time.Hour))
	m.SetLicenses([]string{"danger", "warning"}, map[string]int{"danger": 3})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(ExpirySweepStatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(ExpirySweepStatusError)))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.lastRun))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.licenses.WithLabelValues("danger")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.licenses.WithLabelValues("warning")))
}
