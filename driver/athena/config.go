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
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/athena-adbc/go/adbc"
	"github.com/athena-adbc/go/adbc/driver/internal/driverbase"
)

const (
	OptionRegion           = "adbc.athena.region"
	OptionCatalog          = "adbc.athena.catalog"
	OptionDatabase         = "adbc.athena.database"
	OptionOutputLocation   = "adbc.athena.output_location"
	OptionWorkGroup        = "adbc.athena.work_group"
	OptionAPICallTimeout   = "adbc.athena.api_call_timeout"
	OptionPollingMinDelay  = "adbc.athena.polling.min_delay"
	OptionPollingMaxDelay  = "adbc.athena.polling.max_delay"
	OptionAccessKeyID      = "adbc.athena.auth.access_key_id"
	OptionSecretAccessKey  = "adbc.athena.auth.secret_access_key"
	OptionSessionToken     = "adbc.athena.auth.session_token"
	OptionProfile          = "adbc.athena.auth.profile"
	OptionEndpoint         = "adbc.athena.endpoint"
	OptionMetadataCacheTTL = "adbc.athena.metadata_cache_ttl"

	// Read-only statement options, populated after a successful execution.
	OptionStatementQueryID             = "adbc.athena.statement.query_id"
	OptionStatementDataScannedBytes    = "adbc.athena.statement.data_scanned_bytes"
	OptionStatementEngineExecutionTime = "adbc.athena.statement.engine_execution_time_ms"
	OptionStatementType                = "adbc.athena.statement.type"
)

const (
	DefaultCatalog          = "AwsDataCatalog"
	DefaultDatabase         = "default"
	DefaultWorkGroup        = "primary"
	DefaultAPICallTimeout   = time.Minute
	DefaultPollingMinDelay  = 10 * time.Millisecond
	DefaultPollingMaxDelay  = 5 * time.Second
	DefaultMetadataCacheTTL = 5 * time.Minute
)

// Configuration describes where and how queries run. It is immutable:
// the With* methods return a modified copy and leave the receiver alone.
type Configuration struct {
	catalogName     string
	databaseName    string
	outputLocation  string
	workGroup       string
	apiCallTimeout  time.Duration
	pollingStrategy PollingStrategy
}

// NewConfiguration returns the default configuration.
func NewConfiguration() Configuration {
	return Configuration{
		catalogName:     DefaultCatalog,
		databaseName:    DefaultDatabase,
		workGroup:       DefaultWorkGroup,
		apiCallTimeout:  DefaultAPICallTimeout,
		pollingStrategy: DefaultPollingStrategy(),
	}
}

func (c Configuration) CatalogName() string    { return c.catalogName }
func (c Configuration) DatabaseName() string   { return c.databaseName }
func (c Configuration) OutputLocation() string { return c.outputLocation }
func (c Configuration) WorkGroup() string      { return c.workGroup }

// APICallTimeout bounds the whole status polling loop of one execution.
func (c Configuration) APICallTimeout() time.Duration { return c.apiCallTimeout }

func (c Configuration) PollingStrategy() PollingStrategy {
	if c.pollingStrategy == nil {
		return DefaultPollingStrategy()
	}
	return c.pollingStrategy
}

func (c Configuration) WithCatalogName(name string) Configuration {
	c.catalogName = name
	return c
}

func (c Configuration) WithDatabaseName(name string) Configuration {
	c.databaseName = name
	return c
}

func (c Configuration) WithOutputLocation(location string) Configuration {
	c.outputLocation = location
	return c
}

func (c Configuration) WithWorkGroup(workGroup string) Configuration {
	c.workGroup = workGroup
	return c
}

func (c Configuration) WithAPICallTimeout(timeout time.Duration) Configuration {
	c.apiCallTimeout = timeout
	return c
}

func (c Configuration) WithPollingStrategy(strategy PollingStrategy) Configuration {
	c.pollingStrategy = strategy
	return c
}

func (c Configuration) validate(errs *driverbase.ErrorHelper) error {
	switch {
	case c.catalogName == "":
		return errs.Errorf(adbc.StatusInvalidArgument, "%s must not be empty", OptionCatalog)
	case c.databaseName == "":
		return errs.Errorf(adbc.StatusInvalidArgument, "%s must not be empty", OptionDatabase)
	case c.apiCallTimeout <= 0:
		return errs.Errorf(adbc.StatusInvalidArgument, "%s must be positive", OptionAPICallTimeout)
	}
	return nil
}

// parseDuration accepts a Go duration ("1m30s") or a number of seconds
// ("2.5"). Negative and non-finite values are rejected.
func parseDuration(errs *driverbase.ErrorHelper, key, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return 0, errs.Errorf(adbc.StatusInvalidArgument, "invalid duration option value %s = %s: must be non-negative", key, value)
		}
		return d, nil
	}

	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errs.Errorf(adbc.StatusInvalidArgument, "invalid duration option value %s = %s: %s", key, value, err)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 || secs > math.MaxInt64/float64(time.Second) {
		return 0, errs.Errorf(adbc.StatusInvalidArgument, "invalid duration option value %s = %s: must be non-negative and finite", key, value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
