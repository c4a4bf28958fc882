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

package athena

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/athena-adbc/go/adbc"
	"github.com/athena-adbc/go/adbc/driver/internal/driverbase"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type statementImpl struct {
	driverbase.StatementImplBase

	cnxn     *connectionImpl
	executor *queryExecutor
	query    string

	// cfg is the connection's configuration when the statement was
	// created, plus any statement-level overrides.
	cfg      Configuration
	minDelay time.Duration
	maxDelay time.Duration

	last *queryHandle
}

// Statement is the statement handed out by Athena connections. Besides
// the adbc.Statement methods it can return results as a row Cursor.
type Statement struct {
	driverbase.Statement

	impl *statementImpl
}

func newStatement(cnxn *connectionImpl) *Statement {
	impl := &statementImpl{
		StatementImplBase: driverbase.NewStatementImplBase(&cnxn.ConnectionImplBase, cnxn.ErrorHelper),
		cnxn:              cnxn,
		executor:          newQueryExecutor(cnxn.client, cnxn.Logger),
		cfg:               cnxn.configuration(),
		minDelay:          cnxn.minDelay,
		maxDelay:          cnxn.maxDelay,
	}
	return &Statement{Statement: driverbase.NewStatement(impl), impl: impl}
}

// ExecuteCursor runs the query and returns a Cursor positioned before the
// first row. The cursor stays usable after the statement is closed, but
// not after the connection is.
func (s *Statement) ExecuteCursor(ctx context.Context) (*Cursor, error) {
	pager, err := s.impl.run(ctx, "ExecuteCursor")
	if err != nil {
		return nil, err
	}
	return newCursor(pager), nil
}

// Execute runs sql on cnxn, which must be an Athena connection, and
// returns a Cursor over its rows.
func Execute(ctx context.Context, cnxn adbc.Connection, sql string) (cur *Cursor, err error) {
	st, err := cnxn.NewStatement()
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, st.Close())
		if err != nil && cur != nil {
			_ = cur.Close()
			cur = nil
		}
	}()

	stmt, ok := st.(*Statement)
	if !ok {
		return nil, adbc.Error{Code: adbc.StatusInvalidArgument, Msg: "[Athena] not an Athena connection"}
	}
	if err := stmt.SetSqlQuery(sql); err != nil {
		return nil, err
	}
	return stmt.ExecuteCursor(ctx)
}

func (st *statementImpl) Base() *driverbase.StatementImplBase {
	return &st.StatementImplBase
}

// run submits the current query and waits for it to succeed.
func (st *statementImpl) run(ctx context.Context, spanName string) (pager *resultPager, err error) {
	if err := st.CheckOpen(); err != nil {
		return nil, err
	}
	if st.query == "" {
		return nil, st.ErrorHelper.Errorf(adbc.StatusInvalidState, "no query has been set")
	}

	ctx, span := st.StartSpan(ctx, spanName)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("adbc.status", driverbase.StatusOf(err).String()))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	handle, err := st.executor.execute(ctx, st.query, st.cfg)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("athena.query_id", handle.id),
		attribute.Int64("athena.data_scanned_bytes", handle.dataScannedBytes),
	)
	st.last = handle
	return newResultPager(st.cnxn.client, handle), nil
}

func (st *statementImpl) SetSqlQuery(query string) error {
	if err := st.CheckOpen(); err != nil {
		return err
	}
	st.query = query
	st.last = nil
	return nil
}

func (st *statementImpl) ExecuteQuery(ctx context.Context) (array.RecordReader, int64, error) {
	pager, err := st.run(ctx, "ExecuteQuery")
	if err != nil {
		return nil, -1, err
	}
	rdr, err := newRecordReader(ctx, st.cnxn.Alloc, pager)
	if err != nil {
		return nil, -1, err
	}
	return rdr, -1, nil
}

// ExecuteUpdate reports the row count the service attaches to the first
// result page, or -1 when there is none.
func (st *statementImpl) ExecuteUpdate(ctx context.Context) (int64, error) {
	pager, err := st.run(ctx, "ExecuteUpdate")
	if err != nil {
		return -1, err
	}
	if _, _, err := pager.next(ctx); err != nil {
		return -1, err
	}
	return pager.updateCount, nil
}

func (st *statementImpl) Prepare(context.Context) error {
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoPreparedStatements)
}

func (st *statementImpl) SetSubstraitPlan([]byte) error {
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoSubstrait)
}

func (st *statementImpl) Bind(context.Context, arrow.Record) error {
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoPreparedStatements)
}

func (st *statementImpl) BindStream(context.Context, array.RecordReader) error {
	return st.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoPreparedStatements)
}

func (st *statementImpl) GetParameterSchema() (*arrow.Schema, error) {
	return nil, st.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoPreparedStatements)
}

func (st *statementImpl) ExecutePartitions(context.Context) (*arrow.Schema, adbc.Partitions, int64, error) {
	return nil, adbc.Partitions{}, -1, st.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoPartitions)
}

func (st *statementImpl) SetOption(key, value string) error {
	if err := st.CheckOpen(); err != nil {
		return err
	}
	switch key {
	case OptionAPICallTimeout:
		d, err := parseDuration(&st.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		cfg := st.cfg.WithAPICallTimeout(d)
		if err := cfg.validate(&st.ErrorHelper); err != nil {
			return err
		}
		st.cfg = cfg
	case OptionPollingMinDelay, OptionPollingMaxDelay:
		d, err := parseDuration(&st.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		if key == OptionPollingMinDelay {
			st.minDelay = d
		} else {
			st.maxDelay = d
		}
		st.cfg = st.cfg.WithPollingStrategy(Backoff(st.minDelay, st.maxDelay))
	case OptionStatementQueryID, OptionStatementDataScannedBytes,
		OptionStatementEngineExecutionTime, OptionStatementType:
		return st.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "%s is read-only", key)
	default:
		return st.StatementImplBase.SetOption(key, value)
	}
	return nil
}

func (st *statementImpl) GetOption(key string) (string, error) {
	switch key {
	case OptionAPICallTimeout:
		return st.cfg.APICallTimeout().String(), nil
	case OptionPollingMinDelay:
		return st.minDelay.String(), nil
	case OptionPollingMaxDelay:
		return st.maxDelay.String(), nil
	case OptionStatementQueryID, OptionStatementType:
		if st.last == nil {
			return "", st.noExecution(key)
		}
		if key == OptionStatementType {
			return string(st.last.statementType), nil
		}
		return st.last.id, nil
	case OptionStatementDataScannedBytes, OptionStatementEngineExecutionTime:
		v, err := st.GetOptionInt(key)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(v, 10), nil
	}
	return st.StatementImplBase.GetOption(key)
}

func (st *statementImpl) GetOptionInt(key string) (int64, error) {
	switch key {
	case OptionStatementDataScannedBytes:
		if st.last == nil {
			return 0, st.noExecution(key)
		}
		return st.last.dataScannedBytes, nil
	case OptionStatementEngineExecutionTime:
		if st.last == nil {
			return 0, st.noExecution(key)
		}
		return st.last.engineExecutionTime.Milliseconds(), nil
	}
	return st.StatementImplBase.GetOptionInt(key)
}

func (st *statementImpl) noExecution(key string) error {
	return st.ErrorHelper.Errorf(adbc.StatusInvalidState, "%s is only available after a successful execution", key)
}

func (st *statementImpl) Close() error {
	if !st.MarkClosed() {
		return st.ErrorHelper.Errorf(adbc.StatusInvalidState, driverbase.StatementMessageClosed)
	}
	st.last = nil
	return nil
}

var _ driverbase.StatementImpl = (*statementImpl)(nil)
