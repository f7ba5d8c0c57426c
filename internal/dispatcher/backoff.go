// Copyright 2025 Stacklok, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatcher

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stacklok/hookrelay/internal/config"
)

// newBackOff builds the exponential-with-jitter schedule the dispatcher
// uses between retry attempts: base delay, doubling each attempt, capped, with +/-20%
// jitter so a burst of simultaneously-failing events doesn't retry in
// lockstep. MaxElapsedTime is left at zero (never stop on its own); the
// dispatcher's own attempt counter is what ends the retry loop.
func newBackOff(cfg config.DispatchConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
	b.MaxInterval = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// delayForAttempt returns the backoff delay to wait before retry number
// attempt (1-indexed: the delay before the first retry, after the initial
// attempt failed).
func delayForAttempt(cfg config.DispatchConfig, attempt int) time.Duration {
	b := newBackOff(cfg)
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	// The library applies jitter after its MaxInterval cap, so clamp again
	// to keep the delay within RetryMaxDelayMs.
	maxDelay := time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
	if d == backoff.Stop || d > maxDelay {
		return maxDelay
	}
	return d
}
