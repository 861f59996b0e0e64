package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("entity", "assignment"),
		attribute.String("license_key", "ABC-123"),
		attribute.String("kind", "capacity"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("entity"), attrs[0].Key)
	assert.Equal(t, attribute.Key("kind"), attrs[1].Key)
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordValidationFailure(ctx, "assignment", "capacity")
	m.RecordValidationFailure(ctx, "assignment", "capacity")
	m.RecordAdmission(ctx, "volume", "create", 3)
	m.RecordLockWait(ctx, "local", 5*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if data, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, point := range data.DataPoints {
					sums[metric.Name] += point.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["license_validation_failures_total"])
	assert.Equal(t, int64(1), sums["license_assignments_admitted_total"])
	assert.Equal(t, int64(3), sums["license_assignment_volume_total"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordValidationFailure(context.Background(), "license", "structural")
		m.RecordAdmission(context.Background(), "single", "create", 1)
		m.RecordLockWait(context.Background(), "redis", time.Second)
	})
}
