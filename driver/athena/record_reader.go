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
	"strconv"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Field metadata keys carrying the service's own column description.
const (
	MetadataKeyAthenaType      = "ATHENA:type"
	MetadataKeyAthenaPrecision = "ATHENA:precision"
	MetadataKeyAthenaScale     = "ATHENA:scale"
)

// reader exposes the result pages of one query as an array.RecordReader,
// one record per non-empty page. Every column is utf8: the service returns
// all values as text, and the original type is kept in field metadata.
type reader struct {
	refCount int64
	alloc    memory.Allocator
	pager    *resultPager
	schema   *arrow.Schema

	rec     arrow.Record
	pending []Row
	err     error

	ctx      context.Context
	cancelFn context.CancelFunc
}

// newRecordReader fetches the first page so that the schema is known
// before the reader is handed out.
func newRecordReader(ctx context.Context, alloc memory.Allocator, pager *resultPager) (*reader, error) {
	ctx, cancelFn := context.WithCancel(ctx)
	rows, _, err := pager.next(ctx)
	if err != nil {
		cancelFn()
		return nil, err
	}

	return &reader{
		refCount: 1,
		alloc:    alloc,
		pager:    pager,
		schema:   columnsToSchema(pager.columns),
		pending:  rows,
		ctx:      ctx,
		cancelFn: cancelFn,
	}, nil
}

func columnsToSchema(columns []Column) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		fields[i] = arrow.Field{
			Name:     c.Name,
			Type:     arrow.BinaryTypes.String,
			Nullable: c.Nullable,
			Metadata: arrow.NewMetadata(
				[]string{MetadataKeyAthenaType, MetadataKeyAthenaPrecision, MetadataKeyAthenaScale},
				[]string{c.Type, strconv.Itoa(int(c.Precision)), strconv.Itoa(int(c.Scale))},
			),
		}
	}
	return arrow.NewSchema(fields, nil)
}

func (r *reader) Retain() {
	atomic.AddInt64(&r.refCount, 1)
}

func (r *reader) Release() {
	if atomic.AddInt64(&r.refCount, -1) == 0 {
		if r.rec != nil {
			r.rec.Release()
			r.rec = nil
		}
		r.pending = nil
		r.cancelFn()
	}
}

func (r *reader) Err() error {
	return r.err
}

func (r *reader) Next() bool {
	if r.rec != nil {
		r.rec.Release()
		r.rec = nil
	}
	if r.err != nil {
		return false
	}

	for len(r.pending) == 0 {
		rows, ok, err := r.pager.next(r.ctx)
		if err != nil {
			r.err = err
			return false
		}
		if !ok {
			return false
		}
		r.pending = rows
	}

	r.rec = r.buildRecord(r.pending)
	r.pending = nil
	return true
}

func (r *reader) buildRecord(rows []Row) arrow.Record {
	bldr := array.NewRecordBuilder(r.alloc, r.schema)
	defer bldr.Release()

	for col := range r.schema.Fields() {
		fb := bldr.Field(col).(*array.StringBuilder)
		fb.Reserve(len(rows))
		for _, row := range rows {
			if v := row[col]; v != nil {
				fb.Append(*v)
			} else {
				fb.AppendNull()
			}
		}
	}
	return bldr.NewRecord()
}

func (r *reader) Schema() *arrow.Schema {
	return r.schema
}

func (r *reader) Record() arrow.Record {
	return r.rec
}

func (r *reader) RecordBatch() arrow.Record {
	return r.rec
}

var _ array.RecordReader = (*reader)(nil)
