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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/athena-adbc/go/adbc/driver/athena"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsathena "github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAthena struct {
	mu sync.Mutex

	clientOpts []athena.ClientOptions
	starts     []*awsathena.StartQueryExecutionInput

	state   types.QueryExecutionState
	reason  string
	results *awsathena.GetQueryResultsOutput
}

func (s *stubAthena) factory(_ context.Context, opts athena.ClientOptions) (athena.AthenaAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientOpts = append(s.clientOpts, opts)
	return s, nil
}

func (s *stubAthena) StartQueryExecution(_ context.Context, params *awsathena.StartQueryExecutionInput, _ ...func(*awsathena.Options)) (*awsathena.StartQueryExecutionOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, params)
	return &awsathena.StartQueryExecutionOutput{QueryExecutionId: aws.String("cli-1")}, nil
}

func (s *stubAthena) GetQueryExecution(_ context.Context, params *awsathena.GetQueryExecutionInput, _ ...func(*awsathena.Options)) (*awsathena.GetQueryExecutionOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	if state == "" {
		state = types.QueryExecutionStateSucceeded
	}
	var reason *string
	if s.reason != "" {
		reason = aws.String(s.reason)
	}
	return &awsathena.GetQueryExecutionOutput{QueryExecution: &types.QueryExecution{
		QueryExecutionId: params.QueryExecutionId,
		StatementType:    types.StatementTypeDml,
		Status:           &types.QueryExecutionStatus{State: state, StateChangeReason: reason},
	}}, nil
}

func (s *stubAthena) GetQueryResults(context.Context, *awsathena.GetQueryResultsInput, ...func(*awsathena.Options)) (*awsathena.GetQueryResultsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		return &awsathena.GetQueryResultsOutput{ResultSet: &types.ResultSet{}}, nil
	}
	return s.results, nil
}

func (s *stubAthena) StopQueryExecution(context.Context, *awsathena.StopQueryExecutionInput, ...func(*awsathena.Options)) (*awsathena.StopQueryExecutionOutput, error) {
	return &awsathena.StopQueryExecutionOutput{}, nil
}

func (s *stubAthena) GetTableMetadata(context.Context, *awsathena.GetTableMetadataInput, ...func(*awsathena.Options)) (*awsathena.GetTableMetadataOutput, error) {
	return &awsathena.GetTableMetadataOutput{}, nil
}

func salesResults() *awsathena.GetQueryResultsOutput {
	row := func(vals ...*string) types.Row {
		data := make([]types.Datum, len(vals))
		for i, v := range vals {
			data[i] = types.Datum{VarCharValue: v}
		}
		return types.Row{Data: data}
	}
	return &awsathena.GetQueryResultsOutput{ResultSet: &types.ResultSet{
		ResultSetMetadata: &types.ResultSetMetadata{ColumnInfo: []types.ColumnInfo{
			{Name: aws.String("name"), Type: aws.String("varchar")},
			{Name: aws.String("note"), Type: aws.String("varchar")},
		}},
		Rows: []types.Row{
			row(aws.String("name"), aws.String("note")),
			row(aws.String("widget"), aws.String("two\twords")),
			row(aws.String("gadget"), nil),
		},
	}}
}

func newTestApp(stub *stubAthena, stdin string) (*app, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &app{
		stdin:      strings.NewReader(stdin),
		stdout:     &stdout,
		stderr:     &stderr,
		driverOpts: []athena.DriverOption{athena.WithClientFactory(stub.factory)},
	}, &stdout, &stderr
}

var baseArgs = []string{"--region", "us-east-1", "--output-location", "s3://results/cli/", "-o", athena.OptionPollingMinDelay + "=0"}

func TestQueryPrintsTSV(t *testing.T) {
	stub := &stubAthena{results: salesResults()}
	a, stdout, stderr := newTestApp(stub, "")

	code := execute(a, append(baseArgs, "SELECT name, note FROM sales"))
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "name\tnote\nwidget\ttwo\\twords\ngadget\tNULL\n", stdout.String())

	require.Len(t, stub.starts, 1)
	assert.Equal(t, "SELECT name, note FROM sales", aws.ToString(stub.starts[0].QueryString))
	require.Len(t, stub.clientOpts, 1)
	assert.Equal(t, "us-east-1", stub.clientOpts[0].Region)
}

func TestStatementFromStdin(t *testing.T) {
	stub := &stubAthena{}
	a, stdout, stderr := newTestApp(stub, "  SELECT 1\n")

	require.Equal(t, 0, execute(a, append(baseArgs, "-")), stderr.String())
	require.Len(t, stub.starts, 1)
	assert.Equal(t, "SELECT 1", aws.ToString(stub.starts[0].QueryString))
	assert.Equal(t, "\n", stdout.String())
}

func TestConfigFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "athena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
region: eu-west-1
output_location: s3://from-file/
work_group: analysts
database: sales
options:
  adbc.athena.polling.min_delay: "0"
`), 0o600))

	stub := &stubAthena{}
	a, _, stderr := newTestApp(stub, "")
	code := execute(a, []string{"--config", path, "--region", "us-west-2", "SELECT 1"})
	require.Equal(t, 0, code, stderr.String())

	require.Len(t, stub.clientOpts, 1)
	assert.Equal(t, "us-west-2", stub.clientOpts[0].Region)
	require.Len(t, stub.starts, 1)
	start := stub.starts[0]
	assert.Equal(t, "analysts", aws.ToString(start.WorkGroup))
	assert.Equal(t, "s3://from-file/", aws.ToString(start.ResultConfiguration.OutputLocation))
	assert.Equal(t, "sales", aws.ToString(start.QueryExecutionContext.Database))
}

func TestQueryFailure(t *testing.T) {
	stub := &stubAthena{state: types.QueryExecutionStateFailed, reason: "TABLE_NOT_FOUND: line 1:15: Table 'nope' does not exist"}
	a, stdout, stderr := newTestApp(stub, "")

	assert.Equal(t, 1, execute(a, append(baseArgs, "SELECT * FROM nope")))
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "Table 'nope' does not exist")
}

func TestUsageErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		msg  string
	}{
		{"no statement", baseArgs, "accepts 1 arg(s)"},
		{"blank statement", append(baseArgs, "   "), "empty SQL statement"},
		{"bad option", []string{"-o", "novalue", "SELECT 1"}, "invalid option"},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "SELECT 1"}, "read config"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubAthena{}
			a, _, stderr := newTestApp(stub, "")
			assert.Equal(t, 1, execute(a, tc.args))
			assert.Contains(t, stderr.String(), tc.msg)
			assert.Empty(t, stub.starts)
		})
	}
}

func TestMetricsOutput(t *testing.T) {
	stub := &stubAthena{}
	a, _, stderr := newTestApp(stub, "")

	require.Equal(t, 0, execute(a, append(baseArgs, "--metrics", "SELECT 1")), stderr.String())
	out := stderr.String()
	assert.Contains(t, out, "# TYPE athena_adbc_query_executions_total counter")
	assert.Contains(t, out, `athena_adbc_query_executions_total{outcome="succeeded"}`)
	assert.Contains(t, out, "athena_adbc_result_pages_total")
}
