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
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
)

// Column describes one result column as reported by the service.
type Column struct {
	Name      string
	Type      string
	Nullable  bool
	Precision int32
	Scale     int32
}

// Row is one result row. A nil entry is SQL NULL.
type Row []*string

// resultPager walks the result pages of one query. It is not safe for
// concurrent use.
type resultPager struct {
	client  *serviceClient
	queryID string
	// the first row of the first page repeats the column labels
	skipHeader bool

	token       *string
	started     bool
	done        bool
	columns     []Column
	updateCount int64
}

func newResultPager(client *serviceClient, handle *queryHandle) *resultPager {
	return &resultPager{
		client:      client,
		queryID:     handle.id,
		skipHeader:  handle.statementType == types.StatementTypeDml,
		updateCount: -1,
	}
}

// next fetches the next page. ok is false once the last page has been
// consumed. A failed fetch leaves the pager where it was.
func (p *resultPager) next(ctx context.Context) (rows []Row, ok bool, err error) {
	if err := p.client.checkOpen(); err != nil {
		return nil, false, err
	}
	if p.done {
		return nil, false, nil
	}

	ctx, release := p.client.bind(ctx)
	defer release()

	out, err := p.client.api.GetQueryResults(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(p.queryID),
		NextToken:        p.token,
	})
	if err != nil {
		return nil, false, p.client.translate(ctx, err, "failed to fetch results of query %s", p.queryID)
	}
	resultPagesTotal.Inc()

	var columns []Column
	var data []types.Row
	if rs := out.ResultSet; rs != nil {
		data = rs.Rows
		if md := rs.ResultSetMetadata; md != nil {
			columns = convertColumns(md.ColumnInfo)
		}
	}

	first := !p.started
	if first {
		p.columns = columns
		if out.UpdateCount != nil {
			p.updateCount = *out.UpdateCount
		}
	} else if len(columns) > 0 && !slices.Equal(columns, p.columns) {
		return nil, false, p.client.protocolError("result metadata of query %s changed between pages", p.queryID)
	}

	if first && p.skipHeader && len(data) > 0 {
		data = data[1:]
	}
	rows = make([]Row, 0, len(data))
	for i, r := range data {
		if len(r.Data) != len(p.columns) {
			return nil, false, p.client.protocolError("row %d of query %s has %d values, expected %d", i, p.queryID, len(r.Data), len(p.columns))
		}
		row := make(Row, len(r.Data))
		for j, d := range r.Data {
			row[j] = d.VarCharValue
		}
		rows = append(rows, row)
	}

	p.started = true
	p.token = out.NextToken
	if aws.ToString(out.NextToken) == "" {
		p.done = true
	}
	return rows, true, nil
}

func convertColumns(info []types.ColumnInfo) []Column {
	if len(info) == 0 {
		return nil
	}
	columns := make([]Column, len(info))
	for i, c := range info {
		columns[i] = Column{
			Name:      aws.ToString(c.Name),
			Type:      aws.ToString(c.Type),
			Nullable:  c.Nullable != types.ColumnNullableNotNull,
			Precision: c.Precision,
			Scale:     c.Scale,
		}
	}
	return columns
}
