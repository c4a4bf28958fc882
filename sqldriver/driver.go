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

package sqldriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/athena-adbc/go/adbc"
	"github.com/athena-adbc/go/adbc/driver/athena"
)

const msgNoParameters = "Athena does not support query parameters"

func getIsolationlevel(lvl sql.IsolationLevel) adbc.OptionIsolationLevel {
	switch lvl {
	case sql.LevelDefault:
		return adbc.LevelDefault
	case sql.LevelReadUncommitted:
		return adbc.LevelReadUncommitted
	case sql.LevelReadCommitted:
		return adbc.LevelReadCommitted
	case sql.LevelRepeatableRead:
		return adbc.LevelRepeatableRead
	case sql.LevelSnapshot:
		return adbc.LevelSnapshot
	case sql.LevelSerializable:
		return adbc.LevelSerializable
	case sql.LevelLinearizable:
		return adbc.LevelLinearizable
	}
	return ""
}

// parseConnectStr splits a DSN of the form key=value;key2=value2. Empty
// segments, such as a trailing semicolon, are ignored.
func parseConnectStr(str string) (ret map[string]string, err error) {
	ret = make(map[string]string)
	for _, kv := range strings.Split(str, ";") {
		if strings.TrimSpace(kv) == "" {
			continue
		}
		parsed := strings.SplitN(kv, "=", 2)
		if len(parsed) != 2 {
			return nil, adbc.Error{
				Msg:  "invalid format for connection string",
				Code: adbc.StatusInvalidArgument,
			}
		}

		ret[strings.TrimSpace(parsed[0])] = strings.TrimSpace(parsed[1])
	}
	return
}

func errParameters() error {
	return adbc.Error{Msg: msgNoParameters, Code: adbc.StatusNotImplemented}
}

type connector struct {
	db  adbc.Database
	drv adbc.Driver
}

// NewConnector returns a connector that opens connections on db. The
// connector owns db and closes it with the sql.DB.
func NewConnector(drv adbc.Driver, db adbc.Database) driver.Connector {
	return &connector{db: db, drv: drv}
}

// Connect opens a new ADBC connection for the sql package's pool.
func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	cnxn, err := c.db.Open(ctx)
	if err != nil {
		return nil, err
	}

	return &conn{Conn: cnxn, drv: c.db}, nil
}

// Driver returns the underlying Driver of the connector,
// mainly to maintain compatibility with the Driver method on sql.DB
func (c *connector) Driver() driver.Driver { return Driver{c.drv} }

// Close closes the underlying database handle that the connector was using.
//
// By implementing the io.Closer interface, sql.DB will correctly call
// Close on the connector when sql.DB.Close is called.
func (c *connector) Close() error {
	return c.db.Close()
}

type Driver struct {
	Driver adbc.Driver
}

// Open returns a new connection to the database. The name
// should be semi-colon separated key-value pairs of the form:
// key=value;key2=value2;.....
func (d Driver) Open(name string) (driver.Conn, error) {
	connector, err := d.OpenConnector(name)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector expects the same format as driver.Open
func (d Driver) OpenConnector(name string) (driver.Connector, error) {
	opts, err := parseConnectStr(name)
	if err != nil {
		return nil, err
	}

	db, err := d.Driver.NewDatabase(opts)
	if err != nil {
		return nil, err
	}

	return &connector{db, d.Driver}, nil
}

// conn is a connection to a database. It is not used concurrently by
// multiple goroutines.
type conn struct {
	Conn adbc.Connection
	drv  adbc.Database
}

// Close cancels any query still running on the connection.
func (c *conn) Close() error {
	return c.Conn.Close()
}

// IsValid reports whether the connection can still be used, without a
// round trip.
func (c *conn) IsValid() bool {
	if v, ok := c.Conn.(adbc.ConnectionValidity); ok {
		return v.IsValid()
	}
	return true
}

func (c *conn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.IsValid() {
		return driver.ErrBadConn
	}
	return nil
}

func (c *conn) ResetSession(context.Context) error {
	if !c.IsValid() {
		return driver.ErrBadConn
	}
	return nil
}

func (c *conn) newStatement(query string) (*stmt, error) {
	s, err := c.Conn.NewStatement()
	if err != nil {
		return nil, err
	}

	if err = s.SetSqlQuery(query); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return &stmt{stmt: s}, nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if len(args) > 0 {
		return nil, errParameters()
	}
	s, err := c.newStatement(query)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, true)
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if len(args) > 0 {
		return nil, errParameters()
	}
	s, err := c.newStatement(query)
	if err != nil {
		return nil, err
	}
	res, err := s.ExecContext(ctx, nil)
	return res, errors.Join(err, s.Close())
}

// Begin exists to fulfill the Conn interface, but will return an error.
// Instead, the ConnBeginTx interface is implemented instead.
//
// Deprecated
func (c *conn) Begin() (driver.Tx, error) {
	return nil, adbc.Error{Code: adbc.StatusNotImplemented}
}

// BeginTx turns autocommit off on the connection; a driver without
// transactions rejects that and the error is returned as is.
func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	postopt, ok := c.Conn.(adbc.PostInitOptions)
	if !ok {
		return nil, adbc.Error{Code: adbc.StatusNotImplemented}
	}
	if err := postopt.SetOption(adbc.OptionKeyAutoCommit, adbc.OptionValueDisabled); err != nil {
		return nil, err
	}

	isolationLevel := getIsolationlevel(sql.IsolationLevel(opts.Isolation))
	if isolationLevel == "" {
		return nil, adbc.Error{Code: adbc.StatusNotImplemented}
	}
	if err := postopt.SetOption(adbc.OptionKeyIsolationLevel, string(isolationLevel)); err != nil {
		return nil, err
	}

	if opts.ReadOnly {
		if err := postopt.SetOption(adbc.OptionKeyReadOnly, adbc.OptionValueEnabled); err != nil {
			return nil, err
		}
	}
	return tx{ctx: ctx, conn: c.Conn}, nil
}

// Prepare returns a prepared statement, bound to this connection.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext prepares query on a new statement. Drivers without
// prepared statements fail here with their Prepare error.
func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.newStatement(query)
	if err != nil {
		return nil, err
	}

	if err := s.stmt.Prepare(ctx); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

type tx struct {
	ctx  context.Context
	conn adbc.Connection
}

func (t tx) Commit() error {
	if err := t.conn.Commit(t.ctx); err != nil {
		return err
	}

	return t.conn.(adbc.PostInitOptions).SetOption(adbc.OptionKeyAutoCommit, adbc.OptionValueEnabled)
}

func (t tx) Rollback() error {
	if err := t.conn.Rollback(t.ctx); err != nil {
		return err
	}
	return t.conn.(adbc.PostInitOptions).SetOption(adbc.OptionKeyAutoCommit, adbc.OptionValueEnabled)
}

type stmt struct {
	stmt adbc.Statement
}

func (s *stmt) Close() error {
	return s.stmt.Close()
}

func (s *stmt) NumInput() int {
	return -1
}

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, driver.ErrSkip
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, driver.ErrSkip
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if len(args) > 0 {
		return nil, errParameters()
	}

	affected, err := s.stmt.ExecuteUpdate(ctx)
	if err != nil {
		return nil, err
	}

	return driver.RowsAffected(affected), nil
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if len(args) > 0 {
		return nil, errParameters()
	}
	return s.query(ctx, false)
}

// query executes the statement; when owned is set the statement is
// closed together with the rows, or right away if execution fails.
func (s *stmt) query(ctx context.Context, owned bool) (driver.Rows, error) {
	rdr, affected, err := s.stmt.ExecuteQuery(ctx)
	if err != nil {
		if owned {
			err = errors.Join(err, s.Close())
		}
		return nil, err
	}

	r := &rows{rdr: rdr, rowsAffected: affected}
	if owned {
		r.stmt = s
	}
	return r, nil
}

type rows struct {
	rdr          array.RecordReader
	curRow       int64
	curRecord    arrow.Record
	rowsAffected int64
	// set when the rows own their statement
	stmt *stmt
}

func (r *rows) Columns() (out []string) {
	out = make([]string, len(r.rdr.Schema().Fields()))
	for i, f := range r.rdr.Schema().Fields() {
		out[i] = f.Name
	}
	return
}

func (r *rows) Close() error {
	if r.rdr == nil {
		return nil
	}
	r.curRecord = nil
	r.rdr.Release()
	r.rdr = nil

	if r.stmt == nil {
		return nil
	}
	err := r.stmt.Close()
	r.stmt = nil
	return err
}

func (r *rows) Next(dest []driver.Value) error {
	if r.curRecord != nil && r.curRow == r.curRecord.NumRows() {
		r.curRecord = nil
	}

	for r.curRecord == nil {
		if !r.rdr.Next() {
			if err := r.rdr.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		r.curRecord = r.rdr.Record()
		r.curRow = 0
		if r.curRecord.NumRows() == 0 {
			r.curRecord = nil
		}
	}

	row := int(r.curRow)
	for i, col := range r.curRecord.Columns() {
		if col.IsNull(row) {
			dest[i] = nil
			continue
		}
		switch col := col.(type) {
		case *array.Boolean:
			dest[i] = col.Value(row)
		case *array.Int32:
			dest[i] = col.Value(row)
		case *array.Int64:
			dest[i] = col.Value(row)
		case *array.Float64:
			dest[i] = col.Value(row)
		case *array.String:
			dest[i] = col.Value(row)
		case *array.Binary:
			dest[i] = col.Value(row)
		case *array.Date32:
			dest[i] = col.Value(row).ToTime()
		case *array.Timestamp:
			dest[i] = col.Value(row).ToTime(col.DataType().(*arrow.TimestampType).Unit)
		case *array.Decimal128:
			dest[i] = col.Value(row)
		default:
			return adbc.Error{
				Code: adbc.StatusNotImplemented,
				Msg:  "not yet implemented populating from columns of type " + col.DataType().String(),
			}
		}
	}

	r.curRow++
	return nil
}

func (r *rows) athenaType(index int) (string, bool) {
	return r.rdr.Schema().Field(index).Metadata.GetValue(athena.MetadataKeyAthenaType)
}

// ColumnTypeDatabaseTypeName reports the service's type name, upper
// cased, falling back to the Arrow type for columns without one.
func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	if typ, ok := r.athenaType(index); ok {
		return strings.ToUpper(typ)
	}
	return r.rdr.Schema().Field(index).Type.String()
}

func (r *rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	return r.rdr.Schema().Field(index).Nullable, true
}

func (r *rows) ColumnTypePrecisionScale(index int) (precision, scale int64, ok bool) {
	field := r.rdr.Schema().Field(index)
	if dt, isDecimal := field.Type.(*arrow.Decimal128Type); isDecimal {
		return int64(dt.Precision), int64(dt.Scale), true
	}

	if typ, _ := r.athenaType(index); !strings.HasPrefix(strings.ToLower(typ), "decimal") {
		return 0, 0, false
	}
	p, _ := field.Metadata.GetValue(athena.MetadataKeyAthenaPrecision)
	s, _ := field.Metadata.GetValue(athena.MetadataKeyAthenaScale)
	precision, perr := strconv.ParseInt(p, 10, 64)
	scale, serr := strconv.ParseInt(s, 10, 64)
	if perr != nil || serr != nil {
		return 0, 0, false
	}
	return precision, scale, true
}

func (r *rows) ColumnTypeScanType(index int) reflect.Type {
	switch r.rdr.Schema().Field(index).Type.ID() {
	case arrow.BOOL:
		return reflect.TypeOf(false)
	case arrow.INT32:
		return reflect.TypeOf(int32(0))
	case arrow.INT64:
		return reflect.TypeOf(int64(0))
	case arrow.FLOAT64:
		return reflect.TypeOf(float64(0))
	case arrow.DECIMAL128:
		return reflect.TypeOf(decimal128.Num{})
	case arrow.BINARY:
		return reflect.TypeOf([]byte{})
	case arrow.STRING:
		return reflect.TypeOf("")
	case arrow.DATE32, arrow.TIMESTAMP:
		return reflect.TypeOf(time.Time{})
	}
	return nil
}

var (
	_ driver.QueryerContext     = (*conn)(nil)
	_ driver.ExecerContext      = (*conn)(nil)
	_ driver.ConnBeginTx        = (*conn)(nil)
	_ driver.ConnPrepareContext = (*conn)(nil)
	_ driver.Validator          = (*conn)(nil)
	_ driver.Pinger             = (*conn)(nil)
	_ driver.SessionResetter    = (*conn)(nil)
	_ driver.DriverContext      = Driver{}

	_ driver.RowsColumnTypeDatabaseTypeName = (*rows)(nil)
	_ driver.RowsColumnTypeNullable         = (*rows)(nil)
	_ driver.RowsColumnTypePrecisionScale   = (*rows)(nil)
	_ driver.RowsColumnTypeScanType         = (*rows)(nil)
)
