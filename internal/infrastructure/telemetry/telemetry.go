// Package telemetry installs the OpenTelemetry tracer provider used by
// workflow spans.
//
// Tracing is off by default. With trace_stdout (DEEFLOW_TRACE_STDOUT=true)
// spans are written as JSON to the given writer, which for workers is the
// per-run log file.
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
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ServiceName identifies deeflow in exported spans
const ServiceName = "deeflow"

// Options selects the exporter
type Options struct {
	Stdout  bool
	Writer  io.Writer
	Version string
}

// ShutdownFunc flushes pending spans
type ShutdownFunc func(context.Context) error

// Init configures the global tracer provider. Without an exporter a no-op
// provider is installed and the returned shutdown does nothing.
func Init(opts Options) (ShutdownFunc, error) {
	if !opts.Stdout {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporterOpts := []stdouttrace.Option{}
	if opts.Writer != nil {
		exporterOpts = append(exporterOpts, stdouttrace.WithWriter(opts.Writer))
	}
	exp, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", opts.Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
