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

package driverbase

import (
	"context"
	"errors"
	"fmt"

	"github.com/athena-adbc/go/adbc"
)

// ErrorHelper builds adbc.Error values whose message is prefixed with
// the driver name, e.g. "[Athena] connection closed".
type ErrorHelper struct {
	DriverName string
}

func (helper *ErrorHelper) Errorf(code adbc.Status, message string, format ...any) error {
	return helper.ErrorWithDetails(code, nil, message, format...)
}

// ErrorWithDetails is Errorf with driver-specific details attached.
func (helper *ErrorHelper) ErrorWithDetails(code adbc.Status, details []adbc.ErrorDetail, message string, format ...any) error {
	msg := message
	if len(format) > 0 {
		msg = fmt.Sprintf(message, format...)
	}
	return adbc.Error{
		Code:    code,
		Msg:     fmt.Sprintf("[%s] %s", helper.DriverName, msg),
		Details: details,
	}
}

// CheckContext converts a done context into the matching adbc.Error.
// It returns nil while ctx is still live. maybeErr, when it is not a
// context error, is returned unchanged.
func (helper *ErrorHelper) CheckContext(maybeErr error, ctx context.Context) error {
	if maybeErr != nil && !errors.Is(maybeErr, context.Canceled) && !errors.Is(maybeErr, context.DeadlineExceeded) {
		return maybeErr
	}
	err := maybeErr
	if err == nil {
		err = ctx.Err()
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return helper.Errorf(adbc.StatusCancelled, "operation cancelled: %s", err)
	case errors.Is(err, context.DeadlineExceeded):
		return helper.Errorf(adbc.StatusTimeout, "operation timed out: %s", err)
	}
	return err
}

// StatusOf reports the adbc.Status carried by err, or StatusUnknown.
func StatusOf(err error) adbc.Status {
	var adbcErr adbc.Error
	if errors.As(err, &adbcErr) {
		return adbcErr.Code
	}
	return adbc.StatusUnknown
}
