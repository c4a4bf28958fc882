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

// Package athena is an ADBC driver for Amazon Athena.
//
// Queries are submitted with StartQueryExecution and polled until they
// reach a terminal state; results are then read page by page with
// GetQueryResults, either as Arrow records through the standard
// adbc.Statement API or row by row through a Cursor:
//
//	drv := athena.NewDriver(memory.DefaultAllocator)
//	db, _ := drv.NewDatabase(map[string]string{
//		athena.OptionRegion:         "us-east-1",
//		athena.OptionOutputLocation: "s3://bucket/prefix/",
//	})
//	cnxn, _ := db.Open(ctx)
//	cur, _ := athena.Execute(ctx, cnxn, "SELECT 1")
//
// Athena has no transactions, prepared statements or writable
// connections; the corresponding operations fail with
// adbc.StatusNotImplemented.
package athena

import (
	"context"
	"maps"
	"runtime/debug"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/athena-adbc/go/adbc"
	"github.com/athena-adbc/go/adbc/driver/internal/driverbase"
)

var infoVendorVersion string

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == "github.com/aws/aws-sdk-go-v2/service/athena" {
				infoVendorVersion = dep.Version
			}
		}
	}
}

type driverImpl struct {
	driverbase.DriverImplBase

	factory ClientFactory
}

// DriverOption customizes a driver built by NewDriver.
type DriverOption func(*driverImpl)

// WithClientFactory replaces the function that builds the AWS client for
// each new connection.
func WithClientFactory(factory ClientFactory) DriverOption {
	return func(d *driverImpl) {
		d.factory = factory
	}
}

// NewDriver creates a new Athena driver using the given Arrow allocator.
func NewDriver(alloc memory.Allocator, opts ...DriverOption) adbc.Driver {
	info := driverbase.DefaultDriverInfo("Athena")
	if infoVendorVersion != "" {
		if err := info.RegisterInfoCode(adbc.InfoVendorVersion, infoVendorVersion); err != nil {
			panic(err)
		}
	}
	if err := info.RegisterInfoCode(adbc.InfoVendorSql, true); err != nil {
		panic(err)
	}
	if err := info.RegisterInfoCode(adbc.InfoVendorSubstrait, false); err != nil {
		panic(err)
	}

	d := &driverImpl{
		DriverImplBase: driverbase.NewDriverImplBase(info, alloc),
		factory:        NewAWSClient,
	}
	for _, opt := range opts {
		opt(d)
	}
	return driverbase.NewDriver(d)
}

func (d *driverImpl) NewDatabase(opts map[string]string) (adbc.Database, error) {
	return d.NewDatabaseWithContext(context.Background(), opts)
}

func (d *driverImpl) NewDatabaseWithContext(ctx context.Context, opts map[string]string) (adbc.Database, error) {
	opts = maps.Clone(opts)
	base, err := driverbase.NewDatabaseImplBase(ctx, &d.DriverImplBase)
	if err != nil {
		return nil, err
	}

	db := newDatabase(base, d.factory)
	if err := db.SetOptions(opts); err != nil {
		return nil, err
	}
	return driverbase.NewDatabase(db), nil
}
