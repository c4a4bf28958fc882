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

// Package athena registers the Athena ADBC driver with database/sql under
// the name "athena".
//
//	import _ "github.com/athena-adbc/go/adbc/sqldriver/athena"
//
//	db, err := sql.Open("athena", "adbc.athena.region=us-east-1;adbc.athena.output_location=s3://bucket/prefix/")
package athena

import (
	"database/sql"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/athena-adbc/go/adbc/driver/athena"
	"github.com/athena-adbc/go/adbc/sqldriver"
)

const DriverName = "athena"

// NewDriver returns a database/sql driver backed by a new Athena ADBC
// driver.
func NewDriver(opts ...athena.DriverOption) sqldriver.Driver {
	return sqldriver.Driver{Driver: athena.NewDriver(memory.DefaultAllocator, opts...)}
}

func init() {
	sql.Register(DriverName, NewDriver())
}
