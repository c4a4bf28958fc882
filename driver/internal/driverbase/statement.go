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
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/athena-adbc/go/adbc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	StatementMessageOptionUnknown              = "Unknown statement option"
	StatementMessageOptionUnsupported          = "Unsupported statement option"
	StatementMessageTraceParentIncorrectFormat = "Incorrect or unsupported trace parent format"
	StatementMessageClosed                     = "statement closed"
)

type StatementImpl interface {
	adbc.Statement
	adbc.GetSetOptions
	adbc.OTelTracing
	Base() *StatementImplBase
}

type StatementImplBase struct {
	ErrorHelper ErrorHelper
	Tracer      trace.Tracer
	Logger      *slog.Logger

	cnxn        *ConnectionImplBase
	closed      atomic.Bool
	traceParent string
}

type Statement interface {
	adbc.Statement
	adbc.GetSetOptions
	adbc.OTelTracing
}

type statement struct {
	StatementImpl
}

func NewStatementImplBase(cnxn *ConnectionImplBase, errorHelper ErrorHelper) StatementImplBase {
	return StatementImplBase{
		ErrorHelper: errorHelper,
		Tracer:      cnxn.Tracer,
		Logger:      cnxn.Logger,
		cnxn:        cnxn,
	}
}

func NewStatement(impl StatementImpl) Statement {
	return &statement{
		StatementImpl: impl,
	}
}

// CheckOpen fails once either the statement or its connection is closed.
// A closed connection is reported first.
func (st *StatementImplBase) CheckOpen() error {
	if err := st.cnxn.CheckOpen(); err != nil {
		return err
	}
	if st.closed.Load() {
		return st.ErrorHelper.Errorf(adbc.StatusInvalidState, StatementMessageClosed)
	}
	return nil
}

// MarkClosed reports whether this call moved the statement to closed.
func (st *StatementImplBase) MarkClosed() bool {
	return st.closed.CompareAndSwap(false, true)
}

func (st *StatementImplBase) Close() error {
	if !st.MarkClosed() {
		return st.ErrorHelper.Errorf(adbc.StatusInvalidState, StatementMessageClosed)
	}
	return nil
}

func (st *StatementImplBase) SetOption(key, value string) error {
	switch strings.ToLower(key) {
	case adbc.OptionKeyTelemetryTraceParent:
		st.SetTraceParent(strings.TrimSpace(value))
		return nil
	}
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, "%s '%s'", StatementMessageOptionUnknown, key)
}

func (st *StatementImplBase) SetOptionBytes(key string, value []byte) error {
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, "%s '%s'", StatementMessageOptionUnknown, key)
}

func (st *StatementImplBase) SetOptionInt(key string, value int64) error {
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, "%s '%s'", StatementMessageOptionUnknown, key)
}

func (st *StatementImplBase) SetOptionDouble(key string, value float64) error {
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, "%s '%s'", StatementMessageOptionUnknown, key)
}

func (st *StatementImplBase) GetOption(key string) (string, error) {
	switch strings.ToLower(key) {
	case adbc.OptionKeyTelemetryTraceParent:
		return st.GetTraceParent(), nil
	}
	return "", st.ErrorHelper.Errorf(adbc.StatusNotFound, "%s '%s'", StatementMessageOptionUnknown, key)
}

func (st *StatementImplBase) GetOptionBytes(key string) ([]byte, error) {
	return nil, st.ErrorHelper.Errorf(adbc.StatusNotFound, "%s '%s'", StatementMessageOptionUnknown, key)
}

func (st *StatementImplBase) GetOptionInt(key string) (int64, error) {
	return 0, st.ErrorHelper.Errorf(adbc.StatusNotFound, "%s '%s'", StatementMessageOptionUnknown, key)
}

func (st *StatementImplBase) GetOptionDouble(key string) (float64, error) {
	return 0, st.ErrorHelper.Errorf(adbc.StatusNotFound, "%s '%s'", StatementMessageOptionUnknown, key)
}

func (st *StatementImplBase) GetTraceParent() string {
	return st.traceParent
}

func (st *StatementImplBase) SetTraceParent(traceParent string) {
	st.traceParent = traceParent
}

func (st *StatementImplBase) StartSpan(
	ctx context.Context,
	spanName string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	ctx, _ = maybeAddTraceParent(ctx, st.cnxn, st)
	ctx, span := st.Tracer.Start(ctx, spanName, opts...)
	span.SetAttributes(st.GetInitialSpanAttributes()...)
	return ctx, span
}

func (st *StatementImplBase) GetInitialSpanAttributes() []attribute.KeyValue {
	return st.cnxn.GetInitialSpanAttributes()
}

// Every statement method except Close fails once the statement or its
// connection is closed.

func (st *statement) SetOption(key, value string) error {
	if err := st.Base().CheckOpen(); err != nil {
		return err
	}
	return st.StatementImpl.SetOption(key, value)
}

func (st *statement) SetOptionBytes(key string, value []byte) error {
	if err := st.Base().CheckOpen(); err != nil {
		return err
	}
	return st.StatementImpl.SetOptionBytes(key, value)
}

func (st *statement) SetOptionInt(key string, value int64) error {
	if err := st.Base().CheckOpen(); err != nil {
		return err
	}
	return st.StatementImpl.SetOptionInt(key, value)
}

func (st *statement) SetOptionDouble(key string, value float64) error {
	if err := st.Base().CheckOpen(); err != nil {
		return err
	}
	return st.StatementImpl.SetOptionDouble(key, value)
}

func (st *statement) GetOption(key string) (string, error) {
	if err := st.Base().CheckOpen(); err != nil {
		return "", err
	}
	return st.StatementImpl.GetOption(key)
}

func (st *statement) GetOptionBytes(key string) ([]byte, error) {
	if err := st.Base().CheckOpen(); err != nil {
		return nil, err
	}
	return st.StatementImpl.GetOptionBytes(key)
}

func (st *statement) GetOptionInt(key string) (int64, error) {
	if err := st.Base().CheckOpen(); err != nil {
		return 0, err
	}
	return st.StatementImpl.GetOptionInt(key)
}

func (st *statement) GetOptionDouble(key string) (float64, error) {
	if err := st.Base().CheckOpen(); err != nil {
		return 0, err
	}
	return st.StatementImpl.GetOptionDouble(key)
}

func (st *statement) SetSqlQuery(query string) error {
	if err := st.Base().CheckOpen(); err != nil {
		return err
	}
	return st.StatementImpl.SetSqlQuery(query)
}

func (st *statement) ExecuteQuery(ctx context.Context) (array.RecordReader, int64, error) {
	if err := st.Base().CheckOpen(); err != nil {
		return nil, -1, err
	}
	return st.StatementImpl.ExecuteQuery(ctx)
}

func (st *statement) ExecuteUpdate(ctx context.Context) (int64, error) {
	if err := st.Base().CheckOpen(); err != nil {
		return -1, err
	}
	return st.StatementImpl.ExecuteUpdate(ctx)
}

func (st *statement) Prepare(ctx context.Context) error {
	if err := st.Base().CheckOpen(); err != nil {
		return err
	}
	return st.StatementImpl.Prepare(ctx)
}

func (st *statement) SetSubstraitPlan(plan []byte) error {
	if err := st.Base().CheckOpen(); err != nil {
		return err
	}
	return st.StatementImpl.SetSubstraitPlan(plan)
}

func (st *statement) Bind(ctx context.Context, values arrow.Record) error {
	if err := st.Base().CheckOpen(); err != nil {
		return err
	}
	return st.StatementImpl.Bind(ctx, values)
}

func (st *statement) BindStream(ctx context.Context, stream array.RecordReader) error {
	if err := st.Base().CheckOpen(); err != nil {
		return err
	}
	return st.StatementImpl.BindStream(ctx, stream)
}

func (st *statement) GetParameterSchema() (*arrow.Schema, error) {
	if err := st.Base().CheckOpen(); err != nil {
		return nil, err
	}
	return st.StatementImpl.GetParameterSchema()
}

func (st *statement) ExecutePartitions(ctx context.Context) (*arrow.Schema, adbc.Partitions, int64, error) {
	if err := st.Base().CheckOpen(); err != nil {
		return nil, adbc.Partitions{}, -1, err
	}
	return st.StatementImpl.ExecutePartitions(ctx)
}
