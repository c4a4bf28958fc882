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

import "time"

// PollingStrategy returns how long to wait before the status check that
// follows check number attempt (0-based). It must be a pure function.
type PollingStrategy func(attempt int) time.Duration

// Backoff waits minDelay after the first check and doubles the wait after
// every further check, never exceeding maxDelay.
func Backoff(minDelay, maxDelay time.Duration) PollingStrategy {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return func(attempt int) time.Duration {
		if minDelay == 0 {
			return 0
		}
		d := minDelay
		for i := 0; i < attempt; i++ {
			if d > maxDelay/2 {
				return maxDelay
			}
			d *= 2
		}
		return min(d, maxDelay)
	}
}

// Fixed waits d between every pair of status checks.
func Fixed(d time.Duration) PollingStrategy {
	return func(int) time.Duration { return d }
}

// Immediate never waits. Useful in tests.
func Immediate() PollingStrategy {
	return Fixed(0)
}

// DefaultPollingStrategy backs off from 10ms to 5s.
func DefaultPollingStrategy() PollingStrategy {
	return Backoff(DefaultPollingMinDelay, DefaultPollingMaxDelay)
}
