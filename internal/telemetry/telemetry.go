// Package telemetry initialises OpenTelemetry metrics exported over OTLP/gRPC
// and exposes the counters recorded by the alert and action dispatchers.
// When Init is never called the counters record into the global no-op
// provider.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

const instrumentationName = "fuel-watchtower"

var (
	alertsCounter  metric.Int64Counter
	actionsCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter(instrumentationName)

	// Instrument creation on the global delegating meter never fails.
	alertsCounter, _ = meter.Int64Counter("watchtower.alerts",
		metric.WithDescription("Alerts processed by the alerter, by level and outcome."))
	actionsCounter, _ = meter.Int64Counter("watchtower.actions",
		metric.WithDescription("Pause attempts executed by the action dispatcher, by contract and outcome."))
}

// ShutdownFunc flushes and stops the metric pipeline.
type ShutdownFunc func(ctx context.Context) error

// Init creates an OTLP gRPC MeterProvider for serviceName and registers it
// globally. Exporter endpoint and headers come from the standard
// OTEL_EXPORTER_OTLP_* environment variables.
func Init(ctx context.Context, serviceName string) (ShutdownFunc, error) {
	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// RecordAlert counts one processed alert.
func RecordAlert(ctx context.Context, level, outcome string) {
	alertsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("level", level),
		attribute.String("outcome", outcome),
	))
}

// RecordAction counts one pause attempt.
func RecordAction(ctx context.Context, contract, outcome string) {
	actionsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("contract", contract),
		attribute.String("outcome", outcome),
	))
}
