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

// Package validation is a driver-agnostic test suite intended to aid in
// driver development for ADBC drivers. It provides a series of utilities
// and defined tests that can be used to validate a driver follows the
// correct and expected behavior.
package validation

import (
	"context"
	"io"
	"strconv"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/athena-adbc/go/adbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type DriverQuirks interface {
	// Called in SetupTest to initialize anything needed for testing
	SetupDriver(*testing.T) adbc.Driver
	// Called in TearDownTest to clean up anything necessary in between tests
	TearDownDriver(*testing.T, adbc.Driver)
	// Return the list of key/value pairs of options to pass when
	// calling NewDatabase
	DatabaseOptions() map[string]string
	// Whether AdbcStatementExecutePartitions should work
	SupportsPartitionedData() bool
	// Whether transactions are supported (Commit/Rollback on connection)
	SupportsTransactions() bool
	// Whether Prepare, Bind and GetParameterSchema are supported
	SupportsPreparedStatements() bool
	// Expected GetInfo value for a code; ok is false when any non-null
	// value is acceptable
	GetMetadata(adbc.InfoCode) (value any, ok bool)
	// Name of a table that exists in the backend, and the schema that
	// GetTableSchema should report for it
	SampleTable() (name string, schema *arrow.Schema)
}

// CheckedClose closes c and fails the test if that returns an error.
func CheckedClose(t *testing.T, c io.Closer) {
	t.Helper()
	assert.NoError(t, c.Close())
}

type DatabaseTests struct {
	suite.Suite

	Driver adbc.Driver
	Quirks DriverQuirks
}

func (d *DatabaseTests) SetupTest() {
	d.Driver = d.Quirks.SetupDriver(d.T())
}

func (d *DatabaseTests) TearDownTest() {
	d.Quirks.TearDownDriver(d.T(), d.Driver)
	d.Driver = nil
}

func (d *DatabaseTests) TestNewDatabase() {
	db, err := d.Driver.NewDatabase(d.Quirks.DatabaseOptions())
	d.NoError(err)
	d.NotNil(db)
	d.Implements((*adbc.Database)(nil), db)
	d.NoError(db.Close())
}

func (d *DatabaseTests) TestUnknownOption() {
	opts := d.Quirks.DatabaseOptions()
	opts["adbc.validation.no_such_option"] = "1"
	_, err := d.Driver.NewDatabase(opts)

	var adbcError adbc.Error
	d.ErrorAs(err, &adbcError)
	d.Equal(adbc.StatusNotImplemented, adbcError.Code)
}

type ConnectionTests struct {
	suite.Suite

	Driver adbc.Driver
	Quirks DriverQuirks

	DB adbc.Database
}

func (c *ConnectionTests) SetupTest() {
	c.Driver = c.Quirks.SetupDriver(c.T())
	var err error
	c.DB, err = c.Driver.NewDatabase(c.Quirks.DatabaseOptions())
	c.Require().NoError(err)
}

func (c *ConnectionTests) TearDownTest() {
	c.NoError(c.DB.Close())
	c.Quirks.TearDownDriver(c.T(), c.Driver)
	c.Driver = nil
	c.DB = nil
}

func (c *ConnectionTests) TestNewConn() {
	cnxn, err := c.DB.Open(context.Background())
	c.NoError(err)
	c.NotNil(cnxn)

	c.NoError(cnxn.Close())
}

func (c *ConnectionTests) TestCloseConnTwice() {
	cnxn, err := c.DB.Open(context.Background())
	c.NoError(err)
	c.NotNil(cnxn)

	c.NoError(cnxn.Close())
	err = cnxn.Close()
	var adbcError adbc.Error
	c.ErrorAs(err, &adbcError)
	c.Equal(adbc.StatusInvalidState, adbcError.Code)
}

func (c *ConnectionTests) TestClosedConnRejectsStatements() {
	cnxn, err := c.DB.Open(context.Background())
	c.Require().NoError(err)
	c.NoError(cnxn.Close())

	_, err = cnxn.NewStatement()
	var adbcError adbc.Error
	c.ErrorAs(err, &adbcError)
	c.Equal(adbc.StatusInvalidState, adbcError.Code)

	if v, ok := cnxn.(adbc.ConnectionValidity); ok {
		c.True(v.IsClosed())
		c.False(v.IsValid())
	}
}

func (c *ConnectionTests) TestConcurrent() {
	cnxn, _ := c.DB.Open(context.Background())
	cnxn2, err := c.DB.Open(context.Background())
	c.Require().NoError(err)

	c.NoError(cnxn.Close())
	c.NoError(cnxn2.Close())
}

func (c *ConnectionTests) TestAutocommitDefault() {
	ctx := context.Background()
	// even if not supported, drivers should act as if autocommit is
	// enabled. Drivers with transactions return INVALID_STATE if the
	// client tries to commit or rollback, drivers without return
	// NOT_IMPLEMENTED.
	cnxn, _ := c.DB.Open(ctx)
	defer CheckedClose(c.T(), cnxn)

	expectedCode := adbc.StatusInvalidState
	if !c.Quirks.SupportsTransactions() {
		expectedCode = adbc.StatusNotImplemented
	}
	var adbcError adbc.Error
	err := cnxn.Commit(ctx)
	c.ErrorAs(err, &adbcError)
	c.Equal(expectedCode, adbcError.Code)
	err = cnxn.Rollback(ctx)
	c.ErrorAs(err, &adbcError)
	c.Equal(expectedCode, adbcError.Code)

	cnxnopts, ok := cnxn.(adbc.GetSetOptions)
	if !ok {
		return
	}
	val, err := cnxnopts.GetOption(adbc.OptionKeyAutoCommit)
	c.NoError(err)
	c.Equal(adbc.OptionValueEnabled, val)

	// if the driver supports setting options after init, it should error
	// on an invalid option value for autocommit
	c.Error(cnxnopts.SetOption(adbc.OptionKeyAutoCommit, "invalid"))
}

func (c *ConnectionTests) TestAutocommitToggle() {
	ctx := context.Background()
	cnxn, _ := c.DB.Open(ctx)
	defer CheckedClose(c.T(), cnxn)

	// if the connection doesn't support setting options after init
	// then there's nothing to test here
	cnxnopt, ok := cnxn.(adbc.PostInitOptions)
	if !ok {
		return
	}

	// it is ok to enable autocommit when it is already enabled
	c.NoError(cnxnopt.SetOption(adbc.OptionKeyAutoCommit, adbc.OptionValueEnabled))
	if !c.Quirks.SupportsTransactions() {
		var adbcError adbc.Error
		c.ErrorAs(cnxnopt.SetOption(adbc.OptionKeyAutoCommit, adbc.OptionValueDisabled), &adbcError)
		c.Equal(adbc.StatusNotImplemented, adbcError.Code)
		return
	}

	c.NoError(cnxnopt.SetOption(adbc.OptionKeyAutoCommit, adbc.OptionValueDisabled))
	// it is ok to disable autocommit when it isn't enabled
	c.NoError(cnxnopt.SetOption(adbc.OptionKeyAutoCommit, adbc.OptionValueDisabled))
}

func (c *ConnectionTests) TestMetadataGetInfo() {
	ctx := context.Background()
	cnxn, _ := c.DB.Open(ctx)
	defer CheckedClose(c.T(), cnxn)

	info := []adbc.InfoCode{
		adbc.InfoDriverName,
		adbc.InfoDriverVersion,
		adbc.InfoDriverArrowVersion,
		adbc.InfoVendorName,
		adbc.InfoVendorVersion,
		adbc.InfoVendorArrowVersion,
	}

	rdr, err := cnxn.GetInfo(ctx, info)
	c.Require().NoError(err)
	defer rdr.Release()

	c.Truef(adbc.GetInfoSchema.Equal(rdr.Schema()), "expected: %s\ngot: %s",
		adbc.GetInfoSchema, rdr.Schema())

	seen := 0
	for rdr.Next() {
		rec := rdr.Record()
		codeCol := rec.Column(0).(*array.Uint32)
		valUnion := rec.Column(1).(*array.DenseUnion)
		for i := 0; i < int(rec.NumRows()); i++ {
			code := adbc.InfoCode(codeCol.Value(i))
			child := valUnion.Field(valUnion.ChildID(i))
			offset := int(valUnion.ValueOffset(i))
			// currently we only define utf8 values for metadata
			c.Require().IsType((*array.String)(nil), child, code.String())
			c.False(child.IsNull(offset), code.String())

			if expected, ok := c.Quirks.GetMetadata(code); ok {
				c.Equal(expected, child.(*array.String).Value(offset), code.String())
			}
			seen++
		}
	}
	c.NoError(rdr.Err())
	c.Equal(len(info), seen)
}

func (c *ConnectionTests) TestMetadataGetTableSchema() {
	ctx := context.Background()
	cnxn, _ := c.DB.Open(ctx)
	defer CheckedClose(c.T(), cnxn)

	name, expectedSchema := c.Quirks.SampleTable()
	sc, err := cnxn.GetTableSchema(ctx, nil, nil, name)
	c.Require().NoError(err)
	c.Truef(expectedSchema.Equal(sc), "expected: %s\ngot: %s", expectedSchema, sc)
}

func (c *ConnectionTests) TestMetadataGetTableTypes() {
	ctx := context.Background()
	cnxn, _ := c.DB.Open(ctx)
	defer CheckedClose(c.T(), cnxn)

	rdr, err := cnxn.GetTableTypes(ctx)
	c.Require().NoError(err)
	defer rdr.Release()

	c.Truef(adbc.TableTypesSchema.Equal(rdr.Schema()), "expected: %s\ngot: %s", adbc.TableTypesSchema, rdr.Schema())
	c.True(rdr.Next())
}

type StatementTests struct {
	suite.Suite

	Driver adbc.Driver
	Quirks DriverQuirks

	DB   adbc.Database
	Cnxn adbc.Connection
	ctx  context.Context
}

func (s *StatementTests) SetupTest() {
	s.Driver = s.Quirks.SetupDriver(s.T())
	var err error
	s.DB, err = s.Driver.NewDatabase(s.Quirks.DatabaseOptions())
	s.Require().NoError(err)
	s.ctx = context.Background()
	s.Cnxn, err = s.DB.Open(s.ctx)
	s.Require().NoError(err)
}

func (s *StatementTests) TearDownTest() {
	s.Require().NoError(s.Cnxn.Close())
	s.Require().NoError(s.DB.Close())
	s.Quirks.TearDownDriver(s.T(), s.Driver)
	s.Cnxn = nil
	s.DB = nil
	s.Driver = nil
}

func (s *StatementTests) TestNewStatement() {
	stmt, err := s.Cnxn.NewStatement()
	s.NoError(err)
	s.NotNil(stmt)
	s.NoError(stmt.Close())

	var adbcError adbc.Error
	s.ErrorAs(stmt.Close(), &adbcError)
	s.Equal(adbc.StatusInvalidState, adbcError.Code)

	stmt, err = s.Cnxn.NewStatement()
	s.NoError(err)
	defer CheckedClose(s.T(), stmt)
	_, _, err = stmt.ExecuteQuery(s.ctx)
	s.ErrorAs(err, &adbcError)
	s.Equal(adbc.StatusInvalidState, adbcError.Code)
}

func (s *StatementTests) TestSqlPartitionedInts() {
	stmt, err := s.Cnxn.NewStatement()
	s.Require().NoError(err)
	defer CheckedClose(s.T(), stmt)

	s.NoError(stmt.SetSqlQuery("SELECT 42"))

	var adbcError adbc.Error
	if !s.Quirks.SupportsPartitionedData() {
		_, _, _, err := stmt.ExecutePartitions(s.ctx)
		s.ErrorAs(err, &adbcError)
		s.Equal(adbc.StatusNotImplemented, adbcError.Code)
		return
	}

	sc, part, rows, err := stmt.ExecutePartitions(s.ctx)
	s.Require().NoError(err)

	s.EqualValues(1, part.NumPartitions)
	s.Len(part.PartitionIDs, 1)
	s.True(rows == 1 || rows == -1, rows)

	if sc != nil {
		s.Len(sc.Fields(), 1)
	}

	cxn, err := s.DB.Open(s.ctx)
	s.Require().NoError(err)
	defer CheckedClose(s.T(), cxn)

	rdr, err := cxn.ReadPartition(s.ctx, part.PartitionIDs[0])
	s.Require().NoError(err)
	defer rdr.Release()

	s.Require().NotNil(rdr.Schema())
	s.Len(rdr.Schema().Fields(), 1)
	s.True(rdr.Next())
	s.checkSingleValue(rdr.Record(), 42)
	s.False(rdr.Next())
}

func (s *StatementTests) TestSQLPrepareGetParameterSchema() {
	stmt, err := s.Cnxn.NewStatement()
	s.NoError(err)
	defer CheckedClose(s.T(), stmt)

	s.NoError(stmt.SetSqlQuery("SELECT ?, ?"))
	if !s.Quirks.SupportsPreparedStatements() {
		var adbcError adbc.Error
		s.ErrorAs(stmt.Prepare(s.ctx), &adbcError)
		s.Equal(adbc.StatusNotImplemented, adbcError.Code)
		_, err = stmt.GetParameterSchema()
		s.ErrorAs(err, &adbcError)
		s.Equal(adbc.StatusNotImplemented, adbcError.Code)
		return
	}
	s.NoError(stmt.Prepare(s.ctx))

	sc, err := stmt.GetParameterSchema()
	s.NoError(err)
	// it's allowed to be nil as some systems don't provide param schemas
	if sc != nil {
		s.Len(sc.Fields(), 2)
	}
}

func (s *StatementTests) TestSqlSelectNoParams() {
	stmt, err := s.Cnxn.NewStatement()
	s.NoError(err)
	defer CheckedClose(s.T(), stmt)

	s.NoError(stmt.SetSqlQuery("SELECT 1"))
	if s.Quirks.SupportsPreparedStatements() {
		s.NoError(stmt.Prepare(s.ctx))
	}

	rdr, n, err := stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	s.True(n == 1 || n == -1)
	defer rdr.Release()

	sc := rdr.Schema()
	s.Require().NotNil(sc)
	s.Len(sc.Fields(), 1)

	s.True(rdr.Next())
	s.checkSingleValue(rdr.Record(), 1)
	s.False(rdr.Next())
	s.NoError(rdr.Err())
}

func (s *StatementTests) checkSingleValue(rec arrow.Record, expected int64) {
	s.EqualValues(1, rec.NumCols())
	s.EqualValues(1, rec.NumRows())

	switch arr := rec.Column(0).(type) {
	case *array.Int32:
		s.EqualValues(expected, arr.Value(0))
	case *array.Int64:
		s.EqualValues(expected, arr.Value(0))
	case *array.String:
		s.Equal(strconv.FormatInt(expected, 10), arr.Value(0))
	default:
		s.Failf("unexpected column type", "%s", arr.DataType())
	}
}
