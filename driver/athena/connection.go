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
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/athena-adbc/go/adbc"
	"github.com/athena-adbc/go/adbc/driver/internal/driverbase"
)

// Athena has no transactions, so there is no autocommit setter: the
// connection handles the autocommit option and Commit/Rollback itself.
type connectionImpl struct {
	driverbase.ConnectionImplBase

	client  *serviceClient
	config  atomic.Pointer[Configuration]
	schemas *schemaCache

	// backoff bounds behind the configured polling strategy
	minDelay time.Duration
	maxDelay time.Duration
}

func newConnection(db *databaseImpl, api AthenaAPI, cfg Configuration) *connectionImpl {
	cnxn := &connectionImpl{
		ConnectionImplBase: driverbase.NewConnectionImplBase(&db.DatabaseImplBase),
	}
	cnxn.client = newServiceClient(api, cnxn.ErrorHelper)
	cnxn.schemas = newSchemaCache(db.metadataCacheTTL)
	cnxn.minDelay, cnxn.maxDelay = db.minDelay, db.maxDelay
	cnxn.config.Store(&cfg)
	return cnxn
}

// configuration returns the current configuration snapshot.
func (c *connectionImpl) configuration() Configuration {
	return *c.config.Load()
}

func (c *connectionImpl) GetCurrentCatalog() (string, error) {
	return c.configuration().CatalogName(), nil
}

func (c *connectionImpl) GetCurrentDbSchema() (string, error) {
	return c.configuration().DatabaseName(), nil
}

func (c *connectionImpl) SetCurrentCatalog(string) error {
	return c.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoCatalogChange)
}

// SetCurrentDbSchema switches the database that later statements run in.
// Statements that already exist keep the database they were created with.
func (c *connectionImpl) SetCurrentDbSchema(schema string) error {
	if schema == "" {
		return c.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "%s must not be empty", adbc.OptionKeyCurrentDbSchema)
	}
	cfg := c.configuration().WithDatabaseName(schema)
	c.config.Store(&cfg)
	return nil
}

func (c *connectionImpl) ListTableTypes(context.Context) ([]string, error) {
	return []string{"EXTERNAL_TABLE", "VIRTUAL_VIEW"}, nil
}

func (c *connectionImpl) NewStatement() (adbc.Statement, error) {
	return newStatement(c), nil
}

func (c *connectionImpl) Commit(context.Context) error {
	return c.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoTransactions)
}

func (c *connectionImpl) Rollback(context.Context) error {
	return c.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoTransactions)
}

func (c *connectionImpl) ReadPartition(context.Context, []byte) (array.RecordReader, error) {
	return nil, c.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoPartitions)
}

func (c *connectionImpl) GetOption(key string) (string, error) {
	cfg := c.configuration()
	switch key {
	case adbc.OptionKeyAutoCommit, adbc.OptionKeyReadOnly:
		return adbc.OptionValueEnabled, nil
	case OptionCatalog:
		return cfg.CatalogName(), nil
	case OptionDatabase:
		return cfg.DatabaseName(), nil
	case OptionAPICallTimeout:
		return cfg.APICallTimeout().String(), nil
	case OptionWorkGroup:
		return cfg.WorkGroup(), nil
	case OptionOutputLocation:
		return cfg.OutputLocation(), nil
	}
	return c.ConnectionImplBase.GetOption(key)
}

func (c *connectionImpl) SetOption(key, value string) error {
	switch key {
	case adbc.OptionKeyAutoCommit:
		if value != adbc.OptionValueEnabled {
			return c.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoTransactions)
		}
		return nil
	case adbc.OptionKeyIsolationLevel:
		return c.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoTransactions)
	case adbc.OptionKeyReadOnly:
		if value != adbc.OptionValueEnabled {
			return c.ErrorHelper.Errorf(adbc.StatusNotImplemented, msgNoWritableConnection)
		}
		return nil
	case OptionDatabase:
		return c.SetCurrentDbSchema(value)
	case OptionCatalog:
		return c.SetCurrentCatalog(value)
	case OptionAPICallTimeout:
		d, err := parseDuration(&c.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		cfg := c.configuration().WithAPICallTimeout(d)
		if err := cfg.validate(&c.ErrorHelper); err != nil {
			return err
		}
		c.config.Store(&cfg)
		return nil
	}
	return c.ConnectionImplBase.SetOption(key, value)
}

// Close cancels whatever is still in flight on this connection and
// releases the service client.
func (c *connectionImpl) Close() error {
	c.schemas.purge()
	if err := c.client.close(); err != nil {
		return c.ErrorHelper.Errorf(adbc.StatusIO, "failed to close Athena client: %s", err)
	}
	return nil
}

var (
	_ driverbase.ConnectionImpl    = (*connectionImpl)(nil)
	_ driverbase.CurrentNamespacer = (*connectionImpl)(nil)
	_ driverbase.TableTypeLister   = (*connectionImpl)(nil)
)
