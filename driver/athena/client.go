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
	"io"
	"sync"

	"github.com/athena-adbc/go/adbc"
	"github.com/athena-adbc/go/adbc/driver/internal/driverbase"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/athena"
)

// AthenaAPI is the part of the Athena client used by the driver.
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
	StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
	GetTableMetadata(ctx context.Context, params *athena.GetTableMetadataInput, optFns ...func(*athena.Options)) (*athena.GetTableMetadataOutput, error)
}

var _ AthenaAPI = (*athena.Client)(nil)

// ClientOptions carries the database options needed to build a client.
type ClientOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string
	Endpoint        string
}

// ClientFactory builds the service client for a new connection. If the
// returned client implements io.Closer it is closed with the connection.
type ClientFactory func(ctx context.Context, opts ClientOptions) (AthenaAPI, error)

// NewAWSClient builds an Athena client from the default AWS configuration
// chain, overridden by whatever opts sets.
func NewAWSClient(ctx context.Context, opts ClientOptions) (AthenaAPI, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" || opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	return athena.NewFromConfig(cfg, func(o *athena.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

var errClientClosed = errors.New("athena client closed")

// serviceClient is the connection's handle on the remote service. Every
// call made through it is aborted once the connection closes.
type serviceClient struct {
	api    AthenaAPI
	errs   driverbase.ErrorHelper
	ctx    context.Context
	cancel context.CancelCauseFunc

	closeOnce sync.Once
	closeErr  error
}

func newServiceClient(api AthenaAPI, errs driverbase.ErrorHelper) *serviceClient {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &serviceClient{api: api, errs: errs, ctx: ctx, cancel: cancel}
}

func (c *serviceClient) isClosed() bool {
	return c.ctx.Err() != nil
}

func (c *serviceClient) checkOpen() error {
	if c.isClosed() {
		return c.errs.Errorf(adbc.StatusInvalidState, driverbase.ConnectionMessageClosed)
	}
	return nil
}

// bind derives a context that is also cancelled when the client closes.
func (c *serviceClient) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(c.ctx, func() { cancel(errClientClosed) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// close releases the underlying client exactly once.
func (c *serviceClient) close() error {
	c.closeOnce.Do(func() {
		c.cancel(errClientClosed)
		if closer, ok := c.api.(io.Closer); ok {
			c.closeErr = closer.Close()
		}
	})
	return c.closeErr
}
