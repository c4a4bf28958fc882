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

	"github.com/athena-adbc/go/adbc"
)

const (
	cursorMessageClosed = "cursor closed"
	cursorMessageNoRow  = "no current row"
)

type cursorState int

const (
	cursorBeforeFirst cursorState = iota
	cursorPositioned
	cursorExhausted
	cursorClosed
)

// Cursor is a forward-only, read-only iterator over the rows of one
// successful query. Pages are fetched on demand. A Cursor is not safe for
// concurrent use.
type Cursor struct {
	pager *resultPager
	state cursorState
	rows  []Row
	index int
}

func newCursor(pager *resultPager) *Cursor {
	return &Cursor{pager: pager, index: -1}
}

// QueryID returns the id of the query the cursor reads.
func (c *Cursor) QueryID() string { return c.pager.queryID }

// UpdateCount returns the rows affected as reported with the first page,
// or -1 when unknown or before the first page is fetched.
func (c *Cursor) UpdateCount() int64 { return c.pager.updateCount }

func (c *Cursor) checkOpen() error {
	if c.state == cursorClosed {
		return c.pager.client.errs.Errorf(adbc.StatusInvalidState, cursorMessageClosed)
	}
	return c.pager.client.checkOpen()
}

// Next advances to the next row, fetching further pages as needed and
// skipping empty ones. It returns false once the rows are exhausted. A
// failed fetch leaves the cursor on its current row.
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if c.state == cursorExhausted {
		return false, nil
	}

	for c.index+1 >= len(c.rows) {
		rows, ok, err := c.pager.next(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			c.state = cursorExhausted
			c.rows, c.index = nil, -1
			return false, nil
		}
		c.rows, c.index = rows, -1
	}

	c.index++
	c.state = cursorPositioned
	return true, nil
}

// Row returns the current row.
func (c *Cursor) Row() (Row, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.state != cursorPositioned {
		return nil, c.pager.client.errs.Errorf(adbc.StatusInvalidState, cursorMessageNoRow)
	}
	return c.rows[c.index], nil
}

// Schema returns the result columns, fetching the first page if that has
// not happened yet. The cursor position does not move.
func (c *Cursor) Schema(ctx context.Context) ([]Column, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if !c.pager.started {
		rows, _, err := c.pager.next(ctx)
		if err != nil {
			return nil, err
		}
		c.rows, c.index = rows, -1
	}
	return c.pager.columns, nil
}

// Close releases the buffered rows. It never contacts the service and
// closing twice is a no-op.
func (c *Cursor) Close() error {
	c.state = cursorClosed
	c.rows = nil
	return nil
}
