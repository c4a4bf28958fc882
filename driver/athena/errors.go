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
	"errors"
	"fmt"

	"github.com/athena-adbc/go/adbc"
	"github.com/aws/smithy-go"
)

const (
	msgNoTransactions       = "Athena does not support transactions"
	msgNoPreparedStatements = "Athena does not support prepared statements"
	msgNoCatalogChange      = "Athena does not support changing catalogs"
	msgNoWritableConnection = "Athena does not support writable connections"
	msgNoSubstrait          = "Athena does not support Substrait plans"
	msgNoPartitions         = "Athena does not support partitioned results"

	// ErrorDetailAWSCode names the detail carrying the service error code.
	ErrorDetailAWSCode = "aws.error_code"
)

// statusForErrorCode maps Athena and generic AWS error codes to a status.
func statusForErrorCode(code string) adbc.Status {
	switch code {
	case "InvalidRequestException", "ValidationException":
		return adbc.StatusInvalidArgument
	case "AccessDeniedException", "UnauthorizedOperation":
		return adbc.StatusUnauthorized
	case "UnrecognizedClientException", "InvalidClientTokenId", "ExpiredTokenException", "InvalidSignatureException":
		return adbc.StatusUnauthenticated
	case "ResourceNotFoundException", "EntityNotFoundException":
		return adbc.StatusNotFound
	default:
		return adbc.StatusIO
	}
}

// translate turns an error from a service call made under ctx into an
// adbc.Error. A closed connection wins over everything else, then context
// errors, then the service's own error code.
func (c *serviceClient) translate(ctx context.Context, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var adbcErr adbc.Error
	if errors.As(err, &adbcErr) {
		return err
	}
	if c.isClosed() {
		return c.checkOpen()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return c.errs.CheckContext(err, ctx)
	}

	msg := fmt.Sprintf(format, args...)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return c.errs.ErrorWithDetails(statusForErrorCode(code),
			[]adbc.ErrorDetail{&adbc.TextErrorDetail{Name: ErrorDetailAWSCode, Detail: code}},
			"%s: %s", msg, apiErr.ErrorMessage())
	}
	return c.errs.Errorf(adbc.StatusIO, "%s: %s", msg, err)
}

// protocolError reports a response that does not match what the service
// contract promises.
func (c *serviceClient) protocolError(format string, args ...any) error {
	return c.errs.Errorf(adbc.StatusInternal, "protocol error: "+format, args...)
}
