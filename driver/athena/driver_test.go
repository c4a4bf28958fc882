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
	"maps"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/athena-adbc/go/adbc"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestConnection opens a connection to fake that never waits between
// status checks.
func openTestConnection(t *testing.T, fake *fakeAthena, opts map[string]string) adbc.Connection {
	t.Helper()
	return openTestConnectionWithAllocator(t, fake, memory.DefaultAllocator, opts)
}

func openTestConnectionWithAllocator(t *testing.T, fake *fakeAthena, alloc memory.Allocator, opts map[string]string) adbc.Connection {
	t.Helper()
	dbOpts := map[string]string{OptionPollingMinDelay: "0"}
	maps.Copy(dbOpts, opts)

	drv := NewDriver(alloc, WithClientFactory(fake.factory))
	db, err := drv.NewDatabase(dbOpts)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	cnxn, err := db.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		if !cnxn.(adbc.ConnectionValidity).IsClosed() {
			assert.NoError(t, cnxn.Close())
		}
	})
	return cnxn
}

func newTestStatement(t *testing.T, cnxn adbc.Connection, sql string) adbc.Statement {
	t.Helper()
	stmt, err := cnxn.NewStatement()
	require.NoError(t, err)
	t.Cleanup(func() { _ = stmt.Close() })
	if sql != "" {
		require.NoError(t, stmt.SetSqlQuery(sql))
	}
	return stmt
}

func TestDatabaseOptions(t *testing.T) {
	var got ClientOptions
	factory := func(_ context.Context, opts ClientOptions) (AthenaAPI, error) {
		got = opts
		return newFakeAthena(), nil
	}
	drv := NewDriver(memory.DefaultAllocator, WithClientFactory(factory))
	db, err := drv.NewDatabase(map[string]string{
		OptionRegion:          "eu-west-1",
		OptionEndpoint:        "http://localhost:4566",
		OptionProfile:         "analytics",
		OptionAccessKeyID:     "AKID",
		OptionSecretAccessKey: "SECRET",
		OptionSessionToken:    "TOKEN",
		OptionDatabase:        "sales",
		OptionWorkGroup:       "etl",
		OptionAPICallTimeout:  "90",
	})
	require.NoError(t, err)
	defer db.Close()

	opts := db.(adbc.GetSetOptions)
	val, err := opts.GetOption(OptionAPICallTimeout)
	require.NoError(t, err)
	assert.Equal(t, "1m30s", val)
	val, err = opts.GetOption(OptionRegion)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", val)
	_, err = opts.GetOption(OptionSecretAccessKey)
	requireStatus(t, err, adbc.StatusNotFound)

	cnxn, err := db.Open(context.Background())
	require.NoError(t, err)
	defer cnxn.Close()

	assert.Equal(t, ClientOptions{
		Region:          "eu-west-1",
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
		SessionToken:    "TOKEN",
		Profile:         "analytics",
		Endpoint:        "http://localhost:4566",
	}, got)

	schema, err := cnxn.(adbc.GetSetOptions).GetOption(adbc.OptionKeyCurrentDbSchema)
	require.NoError(t, err)
	assert.Equal(t, "sales", schema)
}

func TestDatabaseInvalidOptions(t *testing.T) {
	drv := NewDriver(memory.DefaultAllocator, WithClientFactory(newFakeAthena().factory))

	for key, val := range map[string]string{
		OptionAPICallTimeout:   "0",
		OptionPollingMinDelay:  "-1s",
		OptionMetadataCacheTTL: "eventually",
	} {
		_, err := drv.NewDatabase(map[string]string{key: val})
		requireStatus(t, err, adbc.StatusInvalidArgument)
	}

	_, err := drv.NewDatabase(map[string]string{"adbc.athena.bogus": "1"})
	requireStatus(t, err, adbc.StatusNotImplemented)

	db, err := drv.NewDatabase(map[string]string{OptionCatalog: ""})
	require.NoError(t, err)
	_, err = db.Open(context.Background())
	requireStatus(t, err, adbc.StatusInvalidArgument)
}

func TestDatabaseClientFactoryError(t *testing.T) {
	factory := func(context.Context, ClientOptions) (AthenaAPI, error) {
		return nil, errors.New("no credentials")
	}
	db, err := NewDriver(memory.DefaultAllocator, WithClientFactory(factory)).NewDatabase(nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Open(context.Background())
	adbcErr := requireStatus(t, err, adbc.StatusIO)
	assert.Contains(t, adbcErr.Msg, "no credentials")
}

func TestConnectionTransactions(t *testing.T) {
	ctx := context.Background()
	cnxn := openTestConnection(t, newFakeAthena(), nil)
	opts := cnxn.(adbc.GetSetOptions)

	val, err := opts.GetOption(adbc.OptionKeyAutoCommit)
	require.NoError(t, err)
	assert.Equal(t, adbc.OptionValueEnabled, val)
	assert.NoError(t, opts.SetOption(adbc.OptionKeyAutoCommit, adbc.OptionValueEnabled))

	adbcErr := requireStatus(t, opts.SetOption(adbc.OptionKeyAutoCommit, adbc.OptionValueDisabled), adbc.StatusNotImplemented)
	assert.Equal(t, "[Athena] Athena does not support transactions", adbcErr.Msg)
	requireStatus(t, opts.SetOption(adbc.OptionKeyIsolationLevel, "adbc.connection.transaction.isolation.serializable"), adbc.StatusNotImplemented)
	requireStatus(t, cnxn.Commit(ctx), adbc.StatusNotImplemented)
	requireStatus(t, cnxn.Rollback(ctx), adbc.StatusNotImplemented)

	val, err = opts.GetOption(adbc.OptionKeyReadOnly)
	require.NoError(t, err)
	assert.Equal(t, adbc.OptionValueEnabled, val)
	assert.NoError(t, opts.SetOption(adbc.OptionKeyReadOnly, adbc.OptionValueEnabled))
	adbcErr = requireStatus(t, opts.SetOption(adbc.OptionKeyReadOnly, adbc.OptionValueDisabled), adbc.StatusNotImplemented)
	assert.Contains(t, adbcErr.Msg, "writable connections")
}

func TestConnectionNamespace(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAthena()
	cnxn := openTestConnection(t, fake, nil)
	opts := cnxn.(adbc.GetSetOptions)

	catalog, err := opts.GetOption(adbc.OptionKeyCurrentCatalog)
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog, catalog)
	adbcErr := requireStatus(t, opts.SetOption(adbc.OptionKeyCurrentCatalog, "other"), adbc.StatusNotImplemented)
	assert.Contains(t, adbcErr.Msg, "changing catalogs")

	before := newTestStatement(t, cnxn, "SELECT 1")
	require.NoError(t, opts.SetOption(adbc.OptionKeyCurrentDbSchema, "sales"))
	schema, err := opts.GetOption(adbc.OptionKeyCurrentDbSchema)
	require.NoError(t, err)
	assert.Equal(t, "sales", schema)
	requireStatus(t, opts.SetOption(adbc.OptionKeyCurrentDbSchema, ""), adbc.StatusInvalidArgument)
	after := newTestStatement(t, cnxn, "SELECT 1")

	_, err = before.ExecuteUpdate(ctx)
	require.NoError(t, err)
	_, err = after.ExecuteUpdate(ctx)
	require.NoError(t, err)

	require.Len(t, fake.starts, 2)
	assert.Equal(t, DefaultDatabase, aws.ToString(fake.starts[0].QueryExecutionContext.Database))
	assert.Equal(t, "sales", aws.ToString(fake.starts[1].QueryExecutionContext.Database))
	// switching databases never reaches the service
	assert.Zero(t, fake.tableCalls)
}

func TestConnectionTimeoutOption(t *testing.T) {
	cnxn := openTestConnection(t, newFakeAthena(), nil)
	opts := cnxn.(adbc.GetSetOptions)

	require.NoError(t, opts.SetOption(OptionAPICallTimeout, "2.5"))
	val, err := opts.GetOption(OptionAPICallTimeout)
	require.NoError(t, err)
	assert.Equal(t, "2.5s", val)

	for _, bad := range []string{"0", "-1", "later"} {
		requireStatus(t, opts.SetOption(OptionAPICallTimeout, bad), adbc.StatusInvalidArgument)
	}
	val, err = opts.GetOption(OptionAPICallTimeout)
	require.NoError(t, err)
	assert.Equal(t, "2.5s", val)

	stmt := newTestStatement(t, cnxn, "")
	val, err = stmt.(adbc.GetSetOptions).GetOption(OptionAPICallTimeout)
	require.NoError(t, err)
	assert.Equal(t, "2.5s", val)
}

func TestConnectionClose(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAthena()
	cnxn := openTestConnection(t, fake, nil)
	stmt := newTestStatement(t, cnxn, "SELECT 1")

	validity := cnxn.(adbc.ConnectionValidity)
	assert.False(t, validity.IsClosed())
	assert.True(t, validity.IsValid())

	require.NoError(t, cnxn.Close())
	assert.True(t, validity.IsClosed())
	assert.False(t, validity.IsValid())
	assert.Equal(t, 1, fake.closed)

	adbcErr := requireStatus(t, cnxn.Close(), adbc.StatusInvalidState)
	assert.Contains(t, adbcErr.Msg, "already closed")
	assert.Equal(t, 1, fake.closed)

	_, err := cnxn.NewStatement()
	adbcErr = requireStatus(t, err, adbc.StatusInvalidState)
	assert.Equal(t, "[Athena] connection closed", adbcErr.Msg)
	_, err = cnxn.(adbc.GetSetOptions).GetOption(adbc.OptionKeyAutoCommit)
	requireStatus(t, err, adbc.StatusInvalidState)
	_, err = cnxn.GetTableTypes(ctx)
	requireStatus(t, err, adbc.StatusInvalidState)
	requireStatus(t, cnxn.Commit(ctx), adbc.StatusInvalidState)

	requireStatus(t, stmt.SetSqlQuery("SELECT 2"), adbc.StatusInvalidState)
	_, _, err = stmt.ExecuteQuery(ctx)
	adbcErr = requireStatus(t, err, adbc.StatusInvalidState)
	assert.Contains(t, adbcErr.Msg, "connection closed")

	// unsupported operations report the closed connection, not the missing feature
	for name, err := range map[string]error{
		"Prepare":          stmt.Prepare(ctx),
		"Bind":             stmt.Bind(ctx, nil),
		"BindStream":       stmt.BindStream(ctx, nil),
		"SetSubstraitPlan": stmt.SetSubstraitPlan([]byte("plan")),
	} {
		adbcErr = requireStatus(t, err, adbc.StatusInvalidState)
		assert.Equal(t, "[Athena] connection closed", adbcErr.Msg, name)
	}
	_, err = stmt.GetParameterSchema()
	requireStatus(t, err, adbc.StatusInvalidState)
	_, _, _, err = stmt.ExecutePartitions(ctx)
	requireStatus(t, err, adbc.StatusInvalidState)
	_, err = stmt.(adbc.GetSetOptions).GetOption(OptionAPICallTimeout)
	requireStatus(t, err, adbc.StatusInvalidState)
	_, err = stmt.(adbc.GetSetOptions).GetOptionInt(OptionStatementDataScannedBytes)
	requireStatus(t, err, adbc.StatusInvalidState)

	starts, _, _, _ := fake.snapshot()
	assert.Zero(t, starts)
}

func TestConnectionInfo(t *testing.T) {
	ctx := context.Background()
	cnxn := openTestConnection(t, newFakeAthena(), nil)

	rdr, err := cnxn.GetInfo(ctx, []adbc.InfoCode{adbc.InfoVendorName, adbc.InfoVendorSql, adbc.InfoVendorSubstrait, adbc.InfoDriverName})
	require.NoError(t, err)
	defer rdr.Release()

	got := map[adbc.InfoCode]any{}
	for rdr.Next() {
		rec := rdr.Record()
		codes := rec.Column(0).(*array.Uint32)
		vals := rec.Column(1).(*array.DenseUnion)
		for i := 0; i < int(rec.NumRows()); i++ {
			child := vals.Field(vals.ChildID(i))
			offset := int(vals.ValueOffset(i))
			switch arr := child.(type) {
			case *array.String:
				got[adbc.InfoCode(codes.Value(i))] = arr.Value(offset)
			case *array.Boolean:
				got[adbc.InfoCode(codes.Value(i))] = arr.Value(offset)
			}
		}
	}
	require.NoError(t, rdr.Err())
	assert.Equal(t, map[adbc.InfoCode]any{
		adbc.InfoVendorName:      "Athena",
		adbc.InfoVendorSql:       true,
		adbc.InfoVendorSubstrait: false,
		adbc.InfoDriverName:      "ADBC Athena Driver - Go",
	}, got)
}

func TestConnectionTableTypes(t *testing.T) {
	cnxn := openTestConnection(t, newFakeAthena(), nil)
	rdr, err := cnxn.GetTableTypes(context.Background())
	require.NoError(t, err)
	defer rdr.Release()

	var got []string
	for rdr.Next() {
		col := rdr.Record().Column(0).(*array.String)
		for i := 0; i < col.Len(); i++ {
			got = append(got, col.Value(i))
		}
	}
	assert.Equal(t, []string{"EXTERNAL_TABLE", "VIRTUAL_VIEW"}, got)

	_, err = cnxn.GetObjects(context.Background(), adbc.ObjectDepthAll, nil, nil, nil, nil, nil)
	requireStatus(t, err, adbc.StatusNotImplemented)
}

func TestStatementUnsupported(t *testing.T) {
	ctx := context.Background()
	cnxn := openTestConnection(t, newFakeAthena(), nil)
	stmt := newTestStatement(t, cnxn, "SELECT ?")

	adbcErr := requireStatus(t, stmt.Prepare(ctx), adbc.StatusNotImplemented)
	assert.Equal(t, "[Athena] Athena does not support prepared statements", adbcErr.Msg)
	requireStatus(t, stmt.Bind(ctx, nil), adbc.StatusNotImplemented)
	requireStatus(t, stmt.BindStream(ctx, nil), adbc.StatusNotImplemented)
	_, err := stmt.GetParameterSchema()
	requireStatus(t, err, adbc.StatusNotImplemented)
	requireStatus(t, stmt.SetSubstraitPlan([]byte{1}), adbc.StatusNotImplemented)
	_, _, _, err = stmt.ExecutePartitions(ctx)
	requireStatus(t, err, adbc.StatusNotImplemented)
	_, err = cnxn.ReadPartition(ctx, []byte{1})
	requireStatus(t, err, adbc.StatusNotImplemented)
}

func TestStatementStatistics(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAthena()
	fake.addQuery("SELECT 1", &fakeQuery{pages: dmlPages(1), scannedBytes: 4096, engineMillis: 321})
	cnxn := openTestConnection(t, fake, nil)
	stmt := newTestStatement(t, cnxn, "SELECT 1")
	opts := stmt.(adbc.GetSetOptions)

	_, err := opts.GetOption(OptionStatementQueryID)
	requireStatus(t, err, adbc.StatusInvalidState)
	_, err = opts.GetOptionInt(OptionStatementDataScannedBytes)
	requireStatus(t, err, adbc.StatusInvalidState)

	rdr, _, err := stmt.ExecuteQuery(ctx)
	require.NoError(t, err)
	rdr.Release()

	id, err := opts.GetOption(OptionStatementQueryID)
	require.NoError(t, err)
	assert.Equal(t, "query-1", id)
	kind, err := opts.GetOption(OptionStatementType)
	require.NoError(t, err)
	assert.Equal(t, "DML", kind)
	scanned, err := opts.GetOptionInt(OptionStatementDataScannedBytes)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, scanned)
	engine, err := opts.GetOption(OptionStatementEngineExecutionTime)
	require.NoError(t, err)
	assert.Equal(t, "321", engine)

	requireStatus(t, opts.SetOption(OptionStatementQueryID, "x"), adbc.StatusInvalidArgument)
	requireStatus(t, opts.SetOption("adbc.athena.statement.bogus", "x"), adbc.StatusNotImplemented)
	_, err = opts.GetOption("adbc.athena.statement.bogus")
	requireStatus(t, err, adbc.StatusNotFound)

	// a new query clears the previous statistics
	require.NoError(t, stmt.SetSqlQuery("SELECT 2"))
	_, err = opts.GetOption(OptionStatementQueryID)
	requireStatus(t, err, adbc.StatusInvalidState)
}

func TestStatementPollingOptions(t *testing.T) {
	cnxn := openTestConnection(t, newFakeAthena(), nil)
	stmt := newTestStatement(t, cnxn, "")
	opts := stmt.(adbc.GetSetOptions)

	require.NoError(t, opts.SetOption(OptionPollingMinDelay, "1ms"))
	require.NoError(t, opts.SetOption(OptionPollingMaxDelay, "4ms"))
	val, err := opts.GetOption(OptionPollingMaxDelay)
	require.NoError(t, err)
	assert.Equal(t, "4ms", val)

	impl := stmt.(*Statement).impl
	strategy := impl.cfg.PollingStrategy()
	assert.Equal(t, 1*time.Millisecond, strategy(0))
	assert.Equal(t, 4*time.Millisecond, strategy(5))

	requireStatus(t, opts.SetOption(OptionPollingMaxDelay, "-1"), adbc.StatusInvalidArgument)
	requireStatus(t, opts.SetOption(OptionAPICallTimeout, "0"), adbc.StatusInvalidArgument)
}

func TestStatementInheritsDatabasePolling(t *testing.T) {
	cnxn := openTestConnection(t, newFakeAthena(), map[string]string{
		OptionPollingMinDelay: "100ms",
		OptionPollingMaxDelay: "1s",
	})
	stmt := newTestStatement(t, cnxn, "")
	opts := stmt.(adbc.GetSetOptions)

	val, err := opts.GetOption(OptionPollingMinDelay)
	require.NoError(t, err)
	assert.Equal(t, "100ms", val)
	val, err = opts.GetOption(OptionPollingMaxDelay)
	require.NoError(t, err)
	assert.Equal(t, "1s", val)

	impl := stmt.(*Statement).impl
	assert.Equal(t, 100*time.Millisecond, impl.cfg.PollingStrategy()(0))
	assert.Equal(t, time.Second, impl.cfg.PollingStrategy()(10))

	// overriding one bound keeps the other from the database
	require.NoError(t, opts.SetOption(OptionPollingMaxDelay, "2s"))
	val, err = opts.GetOption(OptionPollingMinDelay)
	require.NoError(t, err)
	assert.Equal(t, "100ms", val)
	strategy := impl.cfg.PollingStrategy()
	assert.Equal(t, 100*time.Millisecond, strategy(0))
	assert.Equal(t, 1600*time.Millisecond, strategy(4))
	assert.Equal(t, 2*time.Second, strategy(5))

	// other statements are unaffected
	other := newTestStatement(t, cnxn, "")
	val, err = other.(adbc.GetSetOptions).GetOption(OptionPollingMaxDelay)
	require.NoError(t, err)
	assert.Equal(t, "1s", val)
}

func TestStatementRequiresQuery(t *testing.T) {
	cnxn := openTestConnection(t, newFakeAthena(), nil)
	stmt := newTestStatement(t, cnxn, "")
	_, err := stmt.ExecuteUpdate(context.Background())
	requireStatus(t, err, adbc.StatusInvalidState)
}

func TestExecuteUpdate(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAthena()
	count := int64(42)
	fake.addQuery("INSERT INTO t SELECT * FROM s", &fakeQuery{pages: []fakePage{{updateCount: &count}}})
	fake.addQuery("CREATE TABLE t (x int)", &fakeQuery{statementType: types.StatementTypeDdl})
	cnxn := openTestConnection(t, fake, nil)

	n, err := newTestStatement(t, cnxn, "INSERT INTO t SELECT * FROM s").ExecuteUpdate(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	n, err = newTestStatement(t, cnxn, "CREATE TABLE t (x int)").ExecuteUpdate(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, -1, n)
}

func TestExecuteClosesStatement(t *testing.T) {
	fake := newFakeAthena()
	fake.addQuery("SELECT 1", &fakeQuery{
		states: []types.QueryExecutionState{types.QueryExecutionStateFailed},
		reason: "nope",
	})
	cnxn := openTestConnection(t, fake, nil)

	cur, err := Execute(context.Background(), cnxn, "SELECT 1")
	assert.Nil(t, cur)
	requireStatus(t, err, adbc.StatusUnknown)
}
