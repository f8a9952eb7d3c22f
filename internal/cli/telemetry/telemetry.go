// Package telemetry sets up OpenTelemetry tracing for the CLI.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const ServiceName = "stack-linguist"

// Shutdown flushes pending spans and releases the provider.
type Shutdown func(context.Context) error

// Setup returns a tracer for the run. With enabled set, spans are written
// to w as pretty-printed JSON and the provider is also installed globally;
// otherwise the tracer records nothing.
func Setup(enabled bool, w io.Writer, version string) (trace.Tracer, Shutdown, error) {
	if !enabled {
		return noop.NewTracerProvider().Tracer(ServiceName), func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}
	if version == "" {
		version = "dev"
	}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Tracer(ServiceName), tp.Shutdown, nil
}
