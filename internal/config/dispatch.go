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

package config

// DispatchConfig is the configuration for handler dispatch and async retry.
type DispatchConfig struct {
	// HandlerTimeoutMs bounds a single handler invocation.
	HandlerTimeoutMs int64 `mapstructure:"handler_timeout_ms" default:"30000"`
	// MaxRetryAttempts is the retry ceiling after which a failed event is
	// left in the error state for manual retry.
	MaxRetryAttempts int `mapstructure:"max_retry_attempts" default:"5"`
	// RetryBaseDelayMs is the base delay for exponential backoff.
	RetryBaseDelayMs int64 `mapstructure:"retry_base_delay_ms" default:"1000"`
	// RetryMaxDelayMs caps the exponential backoff delay.
	RetryMaxDelayMs int64 `mapstructure:"retry_max_delay_ms" default:"60000"`
	// ExternalAPITimeoutMs is loaded with the rest of the dispatch
	// configuration, but nothing reads it: source-control GetContent and
	// PutContent calls run under the caller's context with no per-call
	// timeout of their own.
	ExternalAPITimeoutMs int64 `mapstructure:"external_api_timeout_ms" default:"10000"`
}
