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

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeSucceeded   = "succeeded"
	outcomeFailed      = "failed"
	outcomeCancelled   = "cancelled"
	outcomeTimeout     = "timeout"
	outcomeSubmitError = "submit_error"
	outcomeError       = "error"
)

var (
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_adbc_query_executions_total",
			Help: "Total number of query executions by outcome.",
		},
		[]string{"outcome"},
	)
	statusChecksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_adbc_status_checks_total",
			Help: "Total number of GetQueryExecution calls made while polling.",
		},
	)
	stopRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_adbc_stop_requests_total",
			Help: "Total number of best-effort StopQueryExecution calls by result.",
		},
		[]string{"result"},
	)
	queryExecutionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "athena_adbc_query_execution_seconds",
			Help:    "Time from submission to a terminal state, in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)
	resultPagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_adbc_result_pages_total",
			Help: "Total number of GetQueryResults pages fetched.",
		},
	)
)

// Collectors returns the driver's metrics. They are not registered
// anywhere by default; pass them to a prometheus.Registerer to export them.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		queryExecutionsTotal,
		statusChecksTotal,
		stopRequestsTotal,
		queryExecutionSeconds,
		resultPagesTotal,
	}
}

// RegisterMetrics registers the driver's metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
