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

// Metrics exposes application-level instruments.
type Metrics struct {
	entitlementChecks    metric.Int64Counter
	usageIncrements      metric.Int64Counter
	snapshotFailures     metric.Int64Counter
	lifecycleTransitions metric.Int64Counter
	webhookEvents        metric.Int64Counter
	sweepExpirations     metric.Int64Counter
	sweepDuration        metric.Float64Histogram
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "jobdeck"
	}
	meter := provider.Meter(name)

	entitlementChecks, err := meter.Int64Counter("jobdeck_entitlement_checks_total")
	if err != nil {
		return nil, err
	}
	usageIncrements, err := meter.Int64Counter("jobdeck_usage_increments_total")
	if err != nil {
		return nil, err
	}
	snapshotFailures, err := meter.Int64Counter("jobdeck_usage_snapshot_failures_total")
	if err != nil {
		return nil, err
	}
	lifecycleTransitions, err := meter.Int64Counter("jobdeck_lifecycle_transitions_total")
	if err != nil {
		return nil, err
	}
	webhookEvents, err := meter.Int64Counter("jobdeck_payment_webhook_events_total")
	if err != nil {
		return nil, err
	}
	sweepExpirations, err := meter.Int64Counter("jobdeck_expiration_sweep_total")
	if err != nil {
		return nil, err
	}
	sweepDuration, err := meter.Float64Histogram("jobdeck_expiration_sweep_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		entitlementChecks:    entitlementChecks,
		usageIncrements:      usageIncrements,
		snapshotFailures:     snapshotFailures,
		lifecycleTransitions: lifecycleTransitions,
		webhookEvents:        webhookEvents,
		sweepExpirations:     sweepExpirations,
		sweepDuration:        sweepDuration,
	}, nil
}

// RecordEntitlementCheck counts one feature or usage check.
func (m *Metrics) RecordEntitlementCheck(ctx context.Context, kind string, allowed bool, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", kind),
		attribute.Bool("allowed", allowed),
		attribute.String("reason", reason),
	)
	m.entitlementChecks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUsageIncrement counts one counter bump.
func (m *Metrics) RecordUsageIncrement(ctx context.Context, resource string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("resource", resource))
	m.usageIncrements.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSnapshotFailure counts a best-effort snapshot write failure.
func (m *Metrics) RecordSnapshotFailure(ctx context.Context, resource string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("resource", resource))
	m.snapshotFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLifecycleTransition counts one state machine transition.
func (m *Metrics) RecordLifecycleTransition(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", eventType))
	m.lifecycleTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookEvent counts one inbound gateway event by outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSweep counts flipped rows and observes sweep duration.
func (m *Metrics) RecordSweep(ctx context.Context, expired int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepExpirations.Add(ctx, expired)
	m.sweepDuration.Record(ctx, elapsed.Seconds())
}

// FilterAttributes drops empty values and truncates long ones so exported
// attribute cardinality stays bounded.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	const maxLen = 64
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Value.Type() == attribute.STRING {
			value := strings.TrimSpace(attr.Value.AsString())
			if value == "" {
				continue
			}
			if len(value) > maxLen {
				value = value[:maxLen]
			}
			filtered = append(filtered, attribute.String(string(attr.Key), value))
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp metric protocol %q", protocol)
	}
}
