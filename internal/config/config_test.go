package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadTelemetryReadsStandardOTLPKeys(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	t.Setenv("OTLP_ENDPOINT", "ignored:1")

	got := Load().Telemetry
	assert.Equal(t, "collector:4318", got.Endpoint)
	assert.Equal(t, "http", got.Protocol)
	assert.True(t, got.TracesEnabled)
	assert.True(t, got.MetricsEnabled)
	assert.Equal(t, 0.25, got.SamplingRatio)
}

func TestLoadTelemetryDefaults(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_METRICS_ENABLED", "")

	got := Load().Telemetry
	assert.Equal(t, "localhost:4317", got.Endpoint)
	assert.False(t, got.TracesEnabled)
	assert.False(t, got.MetricsEnabled)
}
