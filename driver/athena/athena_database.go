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
	"time"

	"github.com/athena-adbc/go/adbc"
	"github.com/athena-adbc/go/adbc/driver/internal/driverbase"
)

type databaseImpl struct {
	driverbase.DatabaseImplBase

	factory    ClientFactory
	clientOpts ClientOptions
	config     Configuration

	minDelay         time.Duration
	maxDelay         time.Duration
	metadataCacheTTL time.Duration
}

func newDatabase(base driverbase.DatabaseImplBase, factory ClientFactory) *databaseImpl {
	return &databaseImpl{
		DatabaseImplBase: base,
		factory:          factory,
		config:           NewConfiguration(),
		minDelay:         DefaultPollingMinDelay,
		maxDelay:         DefaultPollingMaxDelay,
		metadataCacheTTL: DefaultMetadataCacheTTL,
	}
}

func (d *databaseImpl) Open(ctx context.Context) (adbc.Connection, error) {
	if err := d.config.validate(&d.ErrorHelper); err != nil {
		return nil, err
	}

	ctx, span := d.StartSpan(ctx, "Open")
	defer span.End()

	api, err := d.factory(ctx, d.clientOpts)
	if err != nil {
		return nil, d.ErrorHelper.Errorf(adbc.StatusIO, "failed to create Athena client: %s", err)
	}

	cnxn := newConnection(d, api, d.config)
	d.Logger.Debug("connection opened",
		"catalog", d.config.CatalogName(), "database", d.config.DatabaseName(), "work_group", d.config.WorkGroup())
	return driverbase.NewConnectionBuilder(cnxn).
		WithCurrentNamespacer(cnxn).
		WithTableTypeLister(cnxn).
		Connection(), nil
}

func (d *databaseImpl) GetOption(key string) (string, error) {
	switch key {
	case OptionRegion:
		return d.clientOpts.Region, nil
	case OptionProfile:
		return d.clientOpts.Profile, nil
	case OptionEndpoint:
		return d.clientOpts.Endpoint, nil
	case OptionAccessKeyID:
		return d.clientOpts.AccessKeyID, nil
	case OptionCatalog:
		return d.config.CatalogName(), nil
	case OptionDatabase, adbc.OptionKeyCurrentDbSchema:
		return d.config.DatabaseName(), nil
	case OptionOutputLocation:
		return d.config.OutputLocation(), nil
	case OptionWorkGroup:
		return d.config.WorkGroup(), nil
	case OptionAPICallTimeout:
		return d.config.APICallTimeout().String(), nil
	case OptionPollingMinDelay:
		return d.minDelay.String(), nil
	case OptionPollingMaxDelay:
		return d.maxDelay.String(), nil
	case OptionMetadataCacheTTL:
		return d.metadataCacheTTL.String(), nil
	}
	// secrets are write-only
	return d.DatabaseImplBase.GetOption(key)
}

func (d *databaseImpl) SetOptions(options map[string]string) error {
	for key, val := range options {
		if err := d.SetOption(key, val); err != nil {
			return err
		}
	}
	return nil
}

func (d *databaseImpl) SetOption(key, value string) error {
	switch key {
	case OptionRegion:
		d.clientOpts.Region = value
	case OptionProfile:
		d.clientOpts.Profile = value
	case OptionEndpoint:
		d.clientOpts.Endpoint = value
	case OptionAccessKeyID:
		d.clientOpts.AccessKeyID = value
	case OptionSecretAccessKey:
		d.clientOpts.SecretAccessKey = value
	case OptionSessionToken:
		d.clientOpts.SessionToken = value
	case OptionCatalog:
		d.config = d.config.WithCatalogName(value)
	case OptionDatabase, adbc.OptionKeyCurrentDbSchema:
		d.config = d.config.WithDatabaseName(value)
	case OptionOutputLocation:
		d.config = d.config.WithOutputLocation(value)
	case OptionWorkGroup:
		d.config = d.config.WithWorkGroup(value)
	case OptionAPICallTimeout:
		timeout, err := parseDuration(&d.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		if timeout == 0 {
			return d.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "%s must be positive", key)
		}
		d.config = d.config.WithAPICallTimeout(timeout)
	case OptionPollingMinDelay, OptionPollingMaxDelay:
		delay, err := parseDuration(&d.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		if key == OptionPollingMinDelay {
			d.minDelay = delay
		} else {
			d.maxDelay = delay
		}
		d.config = d.config.WithPollingStrategy(Backoff(d.minDelay, d.maxDelay))
	case OptionMetadataCacheTTL:
		ttl, err := parseDuration(&d.ErrorHelper, key, value)
		if err != nil {
			return err
		}
		d.metadataCacheTTL = ttl
	default:
		return d.DatabaseImplBase.SetOption(key, value)
	}
	return nil
}

var _ driverbase.DatabaseImpl = (*databaseImpl)(nil)
