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
	"log/slog"
	"time"

	"github.com/athena-adbc/go/adbc"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/google/uuid"
)

// stopTimeout bounds the best-effort StopQueryExecution call.
const stopTimeout = 10 * time.Second

// queryHandle identifies a query that reached SUCCEEDED.
type queryHandle struct {
	id                  string
	statementType       types.StatementType
	dataScannedBytes    int64
	engineExecutionTime time.Duration
}

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// queryExecutor submits one query and polls it to a terminal state. It
// never retries: a failed submission or status check ends the execution.
type queryExecutor struct {
	client *serviceClient
	logger *slog.Logger
	wait   waitFunc
}

func newQueryExecutor(client *serviceClient, logger *slog.Logger) *queryExecutor {
	return &queryExecutor{client: client, logger: logger, wait: sleepContext}
}

func (e *queryExecutor) execute(ctx context.Context, sql string, cfg Configuration) (*queryHandle, error) {
	if err := e.client.checkOpen(); err != nil {
		return nil, err
	}
	ctx, release := e.client.bind(ctx)
	defer release()

	input := &athena.StartQueryExecutionInput{
		QueryString:        aws.String(sql),
		ClientRequestToken: aws.String(uuid.NewString()),
		QueryExecutionContext: &types.QueryExecutionContext{
			Catalog:  aws.String(cfg.CatalogName()),
			Database: aws.String(cfg.DatabaseName()),
		},
	}
	if cfg.OutputLocation() != "" {
		input.ResultConfiguration = &types.ResultConfiguration{OutputLocation: aws.String(cfg.OutputLocation())}
	}
	if cfg.WorkGroup() != "" {
		input.WorkGroup = aws.String(cfg.WorkGroup())
	}

	start := time.Now()
	out, err := e.client.api.StartQueryExecution(ctx, input)
	if err != nil {
		queryExecutionsTotal.WithLabelValues(outcomeSubmitError).Inc()
		return nil, e.client.translate(ctx, err, "failed to submit query")
	}
	id := aws.ToString(out.QueryExecutionId)
	if id == "" {
		queryExecutionsTotal.WithLabelValues(outcomeError).Inc()
		return nil, e.client.protocolError("StartQueryExecution returned no query execution id")
	}
	logger := e.logger.With("query_id", id)
	logger.Debug("query submitted", "catalog", cfg.CatalogName(), "database", cfg.DatabaseName())

	handle, outcome, err := e.poll(ctx, logger, id, cfg)
	elapsed := time.Since(start)
	queryExecutionsTotal.WithLabelValues(outcome).Inc()
	queryExecutionSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if err != nil {
		logger.Info("query did not succeed", "outcome", outcome, "duration", elapsed, "error", err)
		return nil, err
	}
	logger.Info("query succeeded", "duration", elapsed, "data_scanned_bytes", handle.dataScannedBytes)
	return handle, nil
}

func (e *queryExecutor) poll(ctx context.Context, logger *slog.Logger, id string, cfg Configuration) (*queryHandle, string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, cfg.APICallTimeout())
	defer cancel()

	strategy := cfg.PollingStrategy()
	for attempt := 0; ; attempt++ {
		statusChecksTotal.Inc()
		out, err := e.client.api.GetQueryExecution(pollCtx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
		if err != nil {
			if pollCtx.Err() != nil {
				return e.abandon(ctx, logger, id, cfg)
			}
			return nil, outcomeError, e.client.translate(ctx, err, "failed to get status of query %s", id)
		}

		qe := out.QueryExecution
		if qe == nil || qe.Status == nil {
			return nil, outcomeError, e.client.protocolError("GetQueryExecution returned no status for query %s", id)
		}

		state := qe.Status.State
		logger.Debug("query status", "state", string(state), "attempt", attempt)
		switch state {
		case types.QueryExecutionStateSucceeded:
			return newQueryHandle(id, qe), outcomeSucceeded, nil
		case types.QueryExecutionStateFailed:
			return nil, outcomeFailed, e.client.errs.Errorf(adbc.StatusUnknown, "query %s failed: %s", id, failureReason(qe.Status))
		case types.QueryExecutionStateCancelled:
			if reason := failureReason(qe.Status); reason != "" {
				return nil, outcomeCancelled, e.client.errs.Errorf(adbc.StatusCancelled, "query %s was cancelled: %s", id, reason)
			}
			return nil, outcomeCancelled, e.client.errs.Errorf(adbc.StatusCancelled, "query %s was cancelled", id)
		case types.QueryExecutionStateQueued, types.QueryExecutionStateRunning:
		default:
			return nil, outcomeError, e.client.protocolError("unknown state %q for query %s", state, id)
		}

		delay := strategy(attempt)
		logger.Debug("waiting for query", "attempt", attempt, "wait", delay)
		if err := e.wait(pollCtx, delay); err != nil {
			return e.abandon(ctx, logger, id, cfg)
		}
	}
}

// abandon stops a query that is still running because the polling
// deadline passed, the caller gave up, or the connection closed. The stop
// request is best-effort: its failure is logged and otherwise ignored.
func (e *queryExecutor) abandon(ctx context.Context, logger *slog.Logger, id string, cfg Configuration) (*queryHandle, string, error) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if _, err := e.client.api.StopQueryExecution(stopCtx, &athena.StopQueryExecutionInput{QueryExecutionId: aws.String(id)}); err != nil {
		stopRequestsTotal.WithLabelValues("error").Inc()
		logger.Warn("failed to stop query", "error", err)
	} else {
		stopRequestsTotal.WithLabelValues("ok").Inc()
	}

	switch {
	case e.client.isClosed():
		return nil, outcomeCancelled, e.client.checkOpen()
	case errors.Is(ctx.Err(), context.Canceled):
		return nil, outcomeCancelled, e.client.errs.Errorf(adbc.StatusCancelled, "query %s was cancelled: %s", id, context.Cause(ctx))
	default:
		// either our own polling deadline or the caller's deadline
		return nil, outcomeTimeout, e.client.errs.Errorf(adbc.StatusTimeout, "query %s did not complete within %s", id, cfg.APICallTimeout())
	}
}

func newQueryHandle(id string, qe *types.QueryExecution) *queryHandle {
	h := &queryHandle{id: id, statementType: qe.StatementType}
	if stats := qe.Statistics; stats != nil {
		h.dataScannedBytes = aws.ToInt64(stats.DataScannedInBytes)
		h.engineExecutionTime = time.Duration(aws.ToInt64(stats.EngineExecutionTimeInMillis)) * time.Millisecond
	}
	return h
}

func failureReason(status *types.QueryExecutionStatus) string {
	if reason := aws.ToString(status.StateChangeReason); reason != "" {
		return reason
	}
	if status.AthenaError != nil {
		return aws.ToString(status.AthenaError.ErrorMessage)
	}
	return ""
}
