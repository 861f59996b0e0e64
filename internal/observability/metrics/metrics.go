package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the licensing instruments.
type Metrics struct {
	validationFailures metric.Int64Counter
	admissions         metric.Int64Counter
	admittedVolume     metric.Int64Counter
	lockWait           metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the licensing instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "netbox-license"
	}
	meter := provider.Meter(name)

	validationFailures, err := meter.Int64Counter("license_validation_failures_total",
		metric.WithDescription("Writes rejected by the accounting rules."))
	if err != nil {
		return nil, err
	}
	admissions, err := meter.Int64Counter("license_assignments_admitted_total",
		metric.WithDescription("Assignments written after admission."))
	if err != nil {
		return nil, err
	}
	admittedVolume, err := meter.Int64Counter("license_assignment_volume_total",
		metric.WithDescription("Units of volume granted by admitted assignments."))
	if err != nil {
		return nil, err
	}
	lockWait, err := meter.Float64Histogram("license_admission_lock_wait_seconds",
		metric.WithDescription("Time spent waiting for the per-license admission lock."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		validationFailures: validationFailures,
		admissions:         admissions,
		admittedVolume:     admittedVolume,
		lockWait:           lockWait,
	}, nil
}

// RecordValidationFailure counts a rejected write by entity and error kind.
func (m *Metrics) RecordValidationFailure(ctx context.Context, entity, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("entity", strings.TrimSpace(entity)),
		attribute.String("kind", strings.TrimSpace(kind)),
	)
	m.validationFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAdmission counts an admitted assignment and the volume it holds.
func (m *Metrics) RecordAdmission(ctx context.Context, volumeType, operation string, volume int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("volume_type", strings.TrimSpace(volumeType)),
		attribute.String("operation", strings.TrimSpace(operation)),
	)
	m.admissions.Add(ctx, 1, metric.WithAttributes(attrs...))
	if volume > 0 {
		m.admittedVolume.Add(ctx, volume, metric.WithAttributes(attrs...))
	}
}

// RecordLockWait observes how long admission waited for its license lock.
func (m *Metrics) RecordLockWait(ctx context.Context, backend string, wait time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("backend", strings.TrimSpace(backend)))
	m.lockWait.Record(ctx, wait.Seconds(), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"entity":      {},
	"kind":        {},
	"volume_type": {},
	"operation":   {},
	"backend":     {},
	"status":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
