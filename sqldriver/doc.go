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

// Package sqldriver exposes an ADBC driver through the standard
// database/sql package, described here: https://go.dev/src/database/sql/doc.txt
//
// Registering a driver can be done by importing this and then running
//
//	sql.Register("drivername", sqldriver.Driver{adbcdriver})
//
// The sqldriver/athena package registers the Athena driver under the name
// "athena", so that only a single import statement is needed. The data
// source name is a list of ADBC database options:
//
//	db, err := sql.Open("athena", "adbc.athena.region=us-east-1;adbc.athena.output_location=s3://bucket/prefix/")
//
// Query arguments are rejected since Athena has no query parameters, and
// BeginTx fails because Athena has no transactions. Column type names
// come from the service's own type description.
package sqldriver
