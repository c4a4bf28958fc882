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
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/smithy-go"
)

// fakeQuery scripts how the fake service answers for one SQL text.
type fakeQuery struct {
	// states returned by successive status checks; the last one repeats
	states        []types.QueryExecutionState
	reason        string
	statementType types.StatementType
	scannedBytes  int64
	engineMillis  int64
	pages         []fakePage
	// the last page carries an empty token instead of none
	emptyFinalToken bool
}

type fakePage struct {
	// nil leaves the page without column metadata
	columns     []types.ColumnInfo
	rows        [][]*string
	updateCount *int64
}

type fakeExecution struct {
	query    *fakeQuery
	attempts int
}

type fakeAthena struct {
	mu sync.Mutex

	queries map[string]*fakeQuery
	tables  map[string]*types.TableMetadata

	startErr  error
	statusErr error
	stopErr   error
	// keyed by page index, returned once
	pageErrs map[int]error
	// status checks block until their context is done
	blockStatus   bool
	statusBlocked chan struct{}

	executions map[string]*fakeExecution
	starts     []*athena.StartQueryExecutionInput
	statusIDs  []string
	results    []*athena.GetQueryResultsInput
	stops      []string
	stopCtxErr []error
	tableCalls int
	closed     int
}

func newFakeAthena() *fakeAthena {
	return &fakeAthena{
		queries:    make(map[string]*fakeQuery),
		tables:     make(map[string]*types.TableMetadata),
		pageErrs:   make(map[int]error),
		executions: make(map[string]*fakeExecution),
	}
}

func (f *fakeAthena) factory(context.Context, ClientOptions) (AthenaAPI, error) {
	return f, nil
}

func (f *fakeAthena) addQuery(sql string, q *fakeQuery) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries[sql] = q
}

func (f *fakeAthena) addTable(catalog, database string, md *types.TableMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[catalog+"."+database+"."+aws.ToString(md.Name)] = md
}

func (f *fakeAthena) StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, params)
	if f.startErr != nil {
		return nil, f.startErr
	}

	q, ok := f.queries[aws.ToString(params.QueryString)]
	if !ok {
		q = &fakeQuery{pages: []fakePage{{}}}
	}
	id := fmt.Sprintf("query-%d", len(f.starts))
	f.executions[id] = &fakeExecution{query: q}
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String(id)}, nil
}

func (f *fakeAthena) GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	f.mu.Lock()
	id := aws.ToString(params.QueryExecutionId)
	f.statusIDs = append(f.statusIDs, id)
	if f.blockStatus {
		blocked := f.statusBlocked
		f.mu.Unlock()
		if blocked != nil {
			close(blocked)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.statusErr != nil {
		return nil, f.statusErr
	}

	exec, ok := f.executions[id]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "InvalidRequestException", Message: "unknown query " + id}
	}
	q := exec.query
	state := types.QueryExecutionStateSucceeded
	if len(q.states) > 0 {
		state = q.states[min(exec.attempts, len(q.states)-1)]
	}
	exec.attempts++

	statementType := q.statementType
	if statementType == "" {
		statementType = types.StatementTypeDml
	}
	return &athena.GetQueryExecutionOutput{
		QueryExecution: &types.QueryExecution{
			QueryExecutionId: aws.String(id),
			StatementType:    statementType,
			Status: &types.QueryExecutionStatus{
				State:             state,
				StateChangeReason: stringOrNil(q.reason),
			},
			Statistics: &types.QueryExecutionStatistics{
				DataScannedInBytes:          aws.Int64(q.scannedBytes),
				EngineExecutionTimeInMillis: aws.Int64(q.engineMillis),
			},
		},
	}, nil
}

func (f *fakeAthena) GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, params)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exec, ok := f.executions[aws.ToString(params.QueryExecutionId)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "InvalidRequestException", Message: "unknown query"}
	}
	idx := 0
	if tok := aws.ToString(params.NextToken); tok != "" {
		var err error
		if idx, err = strconv.Atoi(tok); err != nil {
			return nil, &smithy.GenericAPIError{Code: "InvalidRequestException", Message: "bad token"}
		}
	}
	if err, ok := f.pageErrs[idx]; ok {
		delete(f.pageErrs, idx)
		return nil, err
	}

	pages := exec.query.pages
	if len(pages) == 0 {
		pages = []fakePage{{}}
	}
	if idx >= len(pages) {
		return nil, &smithy.GenericAPIError{Code: "InvalidRequestException", Message: "token out of range"}
	}
	page := pages[idx]

	rs := &types.ResultSet{}
	if page.columns != nil {
		rs.ResultSetMetadata = &types.ResultSetMetadata{ColumnInfo: page.columns}
	}
	for _, r := range page.rows {
		data := make([]types.Datum, len(r))
		for i, v := range r {
			data[i] = types.Datum{VarCharValue: v}
		}
		rs.Rows = append(rs.Rows, types.Row{Data: data})
	}

	out := &athena.GetQueryResultsOutput{ResultSet: rs, UpdateCount: page.updateCount}
	switch {
	case idx+1 < len(pages):
		out.NextToken = aws.String(strconv.Itoa(idx + 1))
	case exec.query.emptyFinalToken:
		out.NextToken = aws.String("")
	}
	return out, nil
}

func (f *fakeAthena) StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, aws.ToString(params.QueryExecutionId))
	f.stopCtxErr = append(f.stopCtxErr, ctx.Err())
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return &athena.StopQueryExecutionOutput{}, nil
}

func (f *fakeAthena) GetTableMetadata(ctx context.Context, params *athena.GetTableMetadataInput, _ ...func(*athena.Options)) (*athena.GetTableMetadataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tableCalls++
	key := aws.ToString(params.CatalogName) + "." + aws.ToString(params.DatabaseName) + "." + aws.ToString(params.TableName)
	md, ok := f.tables[key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "table " + key + " not found"}
	}
	return &athena.GetTableMetadataOutput{TableMetadata: md}, nil
}

func (f *fakeAthena) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeAthena) snapshot() (starts, statusChecks, results, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts), len(f.statusIDs), len(f.results), len(f.stops)
}

func stringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func column(name, typ string) types.ColumnInfo {
	return types.ColumnInfo{Name: aws.String(name), Type: aws.String(typ), Nullable: types.ColumnNullableUnknown}
}

func values(vals ...string) []*string {
	out := make([]*string, len(vals))
	for i, v := range vals {
		out[i] = aws.String(v)
	}
	return out
}

var twoColumns = []types.ColumnInfo{column("name", "varchar"), column("n", "integer")}

// dmlPages builds result pages of the given sizes for a SELECT, numbering
// rows across pages and prepending the header row the service sends on
// the first page.
func dmlPages(sizes ...int) []fakePage {
	pages := make([]fakePage, len(sizes))
	n := 0
	for i, size := range sizes {
		var rows [][]*string
		if i == 0 {
			rows = append(rows, values("name", "n"))
		}
		for j := 0; j < size; j++ {
			rows = append(rows, values(fmt.Sprintf("r%d", n), strconv.Itoa(n)))
			n++
		}
		pages[i] = fakePage{columns: twoColumns, rows: rows}
	}
	return pages
}
