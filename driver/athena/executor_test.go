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
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/athena-adbc/go/adbc"
	"github.com/athena-adbc/go/adbc/driver/internal/driverbase"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWait struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingWait) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestExecutor(fake *fakeAthena) (*queryExecutor, *recordingWait) {
	client := newServiceClient(fake, driverbase.ErrorHelper{DriverName: "Athena"})
	exec := newQueryExecutor(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := &recordingWait{}
	exec.wait = rec.wait
	return exec, rec
}

func requireStatus(t *testing.T, err error, code adbc.Status) adbc.Error {
	t.Helper()
	var adbcErr adbc.Error
	require.ErrorAs(t, err, &adbcErr)
	require.Equal(t, code, adbcErr.Code, adbcErr.Msg)
	return adbcErr
}

func TestExecutorPollsUntilSucceeded(t *testing.T) {
	fake := newFakeAthena()
	fake.addQuery("SELECT 1", &fakeQuery{
		states: []types.QueryExecutionState{
			types.QueryExecutionStateRunning,
			types.QueryExecutionStateRunning,
			types.QueryExecutionStateSucceeded,
		},
		scannedBytes: 2048,
		engineMillis: 1500,
	})
	exec, rec := newTestExecutor(fake)

	checksBefore := counterValue(t, statusChecksTotal)
	handle, err := exec.execute(context.Background(), "SELECT 1", NewConfiguration())
	require.NoError(t, err)

	assert.Equal(t, "query-1", handle.id)
	assert.Equal(t, types.StatementTypeDml, handle.statementType)
	assert.EqualValues(t, 2048, handle.dataScannedBytes)
	assert.Equal(t, 1500*time.Millisecond, handle.engineExecutionTime)

	starts, checks, results, stops := fake.snapshot()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 3, checks)
	assert.Zero(t, results)
	assert.Zero(t, stops)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, rec.waits)
	assert.Equal(t, 3.0, counterValue(t, statusChecksTotal)-checksBefore)
}

func TestExecutorSubmitsQueryContext(t *testing.T) {
	fake := newFakeAthena()
	exec, _ := newTestExecutor(fake)

	cfg := NewConfiguration().
		WithDatabaseName("sales").
		WithWorkGroup("analysts").
		WithOutputLocation("s3://bucket/results/")
	_, err := exec.execute(context.Background(), "SELECT 1", cfg)
	require.NoError(t, err)
	_, err = exec.execute(context.Background(), "SELECT 1", NewConfiguration())
	require.NoError(t, err)

	require.Len(t, fake.starts, 2)
	first := fake.starts[0]
	assert.Equal(t, "SELECT 1", aws.ToString(first.QueryString))
	assert.Equal(t, DefaultCatalog, aws.ToString(first.QueryExecutionContext.Catalog))
	assert.Equal(t, "sales", aws.ToString(first.QueryExecutionContext.Database))
	assert.Equal(t, "analysts", aws.ToString(first.WorkGroup))
	require.NotNil(t, first.ResultConfiguration)
	assert.Equal(t, "s3://bucket/results/", aws.ToString(first.ResultConfiguration.OutputLocation))

	second := fake.starts[1]
	assert.Nil(t, second.ResultConfiguration)
	assert.Equal(t, DefaultWorkGroup, aws.ToString(second.WorkGroup))
	assert.NotEmpty(t, aws.ToString(first.ClientRequestToken))
	assert.NotEqual(t, aws.ToString(first.ClientRequestToken), aws.ToString(second.ClientRequestToken))
}

func TestExecutorFailedQuery(t *testing.T) {
	fake := newFakeAthena()
	fake.addQuery("SELECT nope", &fakeQuery{
		states: []types.QueryExecutionState{types.QueryExecutionStateQueued, types.QueryExecutionStateFailed},
		reason: "SYNTAX_ERROR: line 1:8: Column 'nope' cannot be resolved",
	})
	exec, _ := newTestExecutor(fake)

	_, err := exec.execute(context.Background(), "SELECT nope", NewConfiguration())
	adbcErr := requireStatus(t, err, adbc.StatusUnknown)
	assert.Contains(t, adbcErr.Msg, "query query-1 failed")
	assert.Contains(t, adbcErr.Msg, "Column 'nope' cannot be resolved")

	_, checks, results, stops := fake.snapshot()
	assert.Equal(t, 2, checks)
	assert.Zero(t, results)
	assert.Zero(t, stops)
}

func TestExecutorCancelledQuery(t *testing.T) {
	fake := newFakeAthena()
	fake.addQuery("SELECT 1", &fakeQuery{
		states: []types.QueryExecutionState{types.QueryExecutionStateCancelled},
	})
	exec, _ := newTestExecutor(fake)

	_, err := exec.execute(context.Background(), "SELECT 1", NewConfiguration())
	adbcErr := requireStatus(t, err, adbc.StatusCancelled)
	assert.Contains(t, adbcErr.Msg, "query query-1 was cancelled")
}

func TestExecutorUnknownState(t *testing.T) {
	fake := newFakeAthena()
	fake.addQuery("SELECT 1", &fakeQuery{
		states: []types.QueryExecutionState{"PONDERING"},
	})
	exec, _ := newTestExecutor(fake)

	_, err := exec.execute(context.Background(), "SELECT 1", NewConfiguration())
	adbcErr := requireStatus(t, err, adbc.StatusInternal)
	assert.Contains(t, adbcErr.Msg, "protocol error")
}

func TestExecutorSubmissionErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want adbc.Status
	}{
		{"invalid request", "InvalidRequestException", adbc.StatusInvalidArgument},
		{"access denied", "AccessDeniedException", adbc.StatusUnauthorized},
		{"expired token", "ExpiredTokenException", adbc.StatusUnauthenticated},
		{"throttled", "TooManyRequestsException", adbc.StatusIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeAthena()
			fake.startErr = &smithy.GenericAPIError{Code: tt.code, Message: "service says no"}
			exec, _ := newTestExecutor(fake)

			_, err := exec.execute(context.Background(), "SELECT 1", NewConfiguration())
			adbcErr := requireStatus(t, err, tt.want)
			assert.Contains(t, adbcErr.Msg, "failed to submit query: service says no")
			require.Len(t, adbcErr.Details, 1)
			assert.Equal(t, ErrorDetailAWSCode, adbcErr.Details[0].Key())
			detail, err := adbcErr.Details[0].Serialize()
			require.NoError(t, err)
			assert.Equal(t, tt.code, string(detail))

			starts, checks, _, _ := fake.snapshot()
			assert.Equal(t, 1, starts)
			assert.Zero(t, checks)
		})
	}
}

func TestExecutorStatusCheckError(t *testing.T) {
	fake := newFakeAthena()
	fake.statusErr = &smithy.GenericAPIError{Code: "InternalServerException", Message: "boom"}
	exec, _ := newTestExecutor(fake)

	_, err := exec.execute(context.Background(), "SELECT 1", NewConfiguration())
	adbcErr := requireStatus(t, err, adbc.StatusIO)
	assert.Contains(t, adbcErr.Msg, "failed to get status of query query-1")

	_, checks, _, stops := fake.snapshot()
	assert.Equal(t, 1, checks)
	assert.Zero(t, stops)
}

func TestExecutorTimeoutStopsQueryOnce(t *testing.T) {
	for _, stopErr := range []error{nil, &smithy.GenericAPIError{Code: "InvalidRequestException", Message: "already done"}} {
		fake := newFakeAthena()
		fake.stopErr = stopErr
		fake.addQuery("SELECT 1", &fakeQuery{
			states: []types.QueryExecutionState{types.QueryExecutionStateRunning},
		})
		exec, _ := newTestExecutor(fake)
		exec.wait = sleepContext

		cfg := NewConfiguration().
			WithAPICallTimeout(30 * time.Millisecond).
			WithPollingStrategy(Fixed(time.Millisecond))
		_, err := exec.execute(context.Background(), "SELECT 1", cfg)
		adbcErr := requireStatus(t, err, adbc.StatusTimeout)
		assert.Contains(t, adbcErr.Msg, "query query-1 did not complete within 30ms")

		require.Equal(t, []string{"query-1"}, fake.stops)
		assert.NoError(t, fake.stopCtxErr[0])
	}
}

func TestExecutorCallerCancellation(t *testing.T) {
	fake := newFakeAthena()
	fake.addQuery("SELECT 1", &fakeQuery{
		states: []types.QueryExecutionState{types.QueryExecutionStateQueued},
	})
	exec, _ := newTestExecutor(fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.wait = func(waitCtx context.Context, _ time.Duration) error {
		cancel()
		return waitCtx.Err()
	}

	_, err := exec.execute(ctx, "SELECT 1", NewConfiguration())
	adbcErr := requireStatus(t, err, adbc.StatusCancelled)
	assert.Contains(t, adbcErr.Msg, "query query-1 was cancelled")

	require.Equal(t, []string{"query-1"}, fake.stops)
	// the stop request must not inherit the caller's cancellation
	assert.NoError(t, fake.stopCtxErr[0])
}

func TestExecutorCallerDeadline(t *testing.T) {
	fake := newFakeAthena()
	fake.addQuery("SELECT 1", &fakeQuery{
		states: []types.QueryExecutionState{types.QueryExecutionStateRunning},
	})
	exec, _ := newTestExecutor(fake)
	exec.wait = sleepContext

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := exec.execute(ctx, "SELECT 1", NewConfiguration().WithPollingStrategy(Fixed(time.Millisecond)))
	requireStatus(t, err, adbc.StatusTimeout)
	assert.Len(t, fake.stops, 1)
}

func TestExecutorConnectionClosedWhilePolling(t *testing.T) {
	fake := newFakeAthena()
	fake.blockStatus = true
	fake.statusBlocked = make(chan struct{})
	exec, _ := newTestExecutor(fake)

	errCh := make(chan error, 1)
	go func() {
		_, err := exec.execute(context.Background(), "SELECT 1", NewConfiguration())
		errCh <- err
	}()

	<-fake.statusBlocked
	require.NoError(t, exec.client.close())

	select {
	case err := <-errCh:
		adbcErr := requireStatus(t, err, adbc.StatusInvalidState)
		assert.Contains(t, adbcErr.Msg, "connection closed")
	case <-time.After(5 * time.Second):
		t.Fatal("execute did not return after the connection was closed")
	}
	assert.Equal(t, 1, fake.closed)
}

func TestExecutorRejectsClosedClient(t *testing.T) {
	fake := newFakeAthena()
	exec, _ := newTestExecutor(fake)
	require.NoError(t, exec.client.close())
	require.NoError(t, exec.client.close())
	assert.Equal(t, 1, fake.closed)

	_, err := exec.execute(context.Background(), "SELECT 1", NewConfiguration())
	requireStatus(t, err, adbc.StatusInvalidState)
	starts, _, _, _ := fake.snapshot()
	assert.Zero(t, starts)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleepContext(ctx, 0), context.Canceled)
}
