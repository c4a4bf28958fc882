// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package driverbase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

func nilLogger() *slog.Logger {
	return slog.New(discardHandler{})
}

func nilTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("")
}

type traceParentGetter interface {
	GetTraceParent() string
}

// maybeAddTraceParent attaches the W3C trace parent configured on the
// statement, or failing that on its parent, as the remote span context
// of ctx.
func maybeAddTraceParent(ctx context.Context, parent traceParentGetter, child traceParentGetter) (context.Context, error) {
	var traceParent string
	if child != nil {
		traceParent = child.GetTraceParent()
	}
	if traceParent == "" && parent != nil {
		traceParent = parent.GetTraceParent()
	}
	if traceParent == "" {
		return ctx, nil
	}

	carrier := propagation.MapCarrier{"traceparent": traceParent}
	spanCtx := trace.SpanContextFromContext(propagation.TraceContext{}.Extract(context.Background(), carrier))
	if !spanCtx.IsValid() {
		return ctx, fmt.Errorf("%s: %q", StatementMessageTraceParentIncorrectFormat, traceParent)
	}
	return trace.ContextWithRemoteSpanContext(ctx, spanCtx), nil
}
