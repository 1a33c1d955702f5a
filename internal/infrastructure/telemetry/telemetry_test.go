package telemetry_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/telemetry"
)

func TestInit_Stdout(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := telemetry.Init(telemetry.Options{Stdout: true, Writer: &buf, Version: "test"})
	require.NoError(t, err)

	_, span := otel.Tracer("deeflow/test").Start(context.Background(), "node.analyze")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "node.analyze")
	assert.Contains(t, buf.String(), "deeflow")
}

func TestInit_Disabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := telemetry.Init(telemetry.Options{})
	require.NoError(t, err)

	_, span := otel.Tracer("deeflow/test").Start(context.Background(), "node.plan")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, shutdown(context.Background()))
}
