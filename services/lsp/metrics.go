// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("crush.lsp")
	meter  = otel.Meter("crush.lsp")
)

var (
	requestLatency   metric.Float64Histogram
	requestTotal     metric.Int64Counter
	serverSpawns     metric.Int64Counter
	droppedResponses metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments once. Safe to call repeatedly.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"lsp_request_duration_seconds",
			metric.WithDescription("Round trip time of LSP requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"lsp_request_total",
			metric.WithDescription("Total number of LSP requests"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverSpawns, err = meter.Int64Counter(
			"lsp_server_spawns_total",
			metric.WithDescription("Total number of language server spawns"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		droppedResponses, err = meter.Int64Counter(
			"lsp_dropped_responses_total",
			metric.WithDescription("Responses whose id matched no pending request"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func startRequestSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Conn.Call",
		trace.WithAttributes(attribute.String("lsp.method", method)),
	)
}

// endRequestSpan records the outcome on span and ends it.
func endRequestSpan(span trace.Span, id ID, err error) {
	span.SetAttributes(attribute.String("lsp.request_id", id.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func recordRequest(ctx context.Context, method string, duration time.Duration, err error) {
	if initMetrics() != nil {
		return
	}

	outcome := "ok"
	var rpcErr *RPCError
	switch {
	case err == nil:
	case errors.As(err, &rpcErr):
		outcome = "rpc_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "abandoned"
	default:
		outcome = "failed"
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	)
	requestLatency.Record(ctx, duration.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

func recordSpawn(ctx context.Context, command string, success bool) {
	if initMetrics() != nil {
		return
	}
	serverSpawns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", success),
	))
}

func recordDroppedResponse() {
	if initMetrics() != nil {
		return
	}
	droppedResponses.Add(context.Background(), 1)
}
