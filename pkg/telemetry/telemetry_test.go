// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func resetGlobals(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
	})
}

func TestInit_StdoutExporters(t *testing.T) {
	resetGlobals(t)
	var buf bytes.Buffer
	ctx := context.Background()

	shutdown, err := Init(ctx, Config{
		ServiceName:    "crush",
		ServiceVersion: "test",
		TraceExporter:  ExporterStdout,
		MetricExporter: ExporterStdout,
		Output:         &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("crush.test").Start(ctx, "lsp.request textDocument/documentSymbol")
	span.End()
	counter, err := otel.Meter("crush.test").Int64Counter("crush.test.requests")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	require.NoError(t, shutdown(ctx))
	out := buf.String()
	assert.Contains(t, out, "lsp.request textDocument/documentSymbol")
	assert.Contains(t, out, "crush.test.requests")
	assert.Contains(t, out, "service.version")
}

func TestInit_NoneInstallsNothing(t *testing.T) {
	resetGlobals(t)
	cfg := Config{TraceExporter: ExporterNone, MetricExporter: ""}
	assert.False(t, cfg.Enabled())

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	resetGlobals(t)
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{MetricExporter: "prometheus"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_OTLPIsLazy(t *testing.T) {
	resetGlobals(t)
	shutdown, err := Init(context.Background(), Config{
		TraceExporter: ExporterOTLP,
		OTLPEndpoint:  "127.0.0.1:1",
		OTLPInsecure:  true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "otlp")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")

	cfg := ConfigFromEnv("crush", "1.2.3")
	assert.Equal(t, ExporterOTLP, cfg.TraceExporter)
	assert.Equal(t, ExporterNone, cfg.MetricExporter)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.False(t, cfg.OTLPInsecure)
	assert.True(t, cfg.Enabled())
}
