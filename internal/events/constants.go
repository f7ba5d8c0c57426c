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

package events

// Metadata keys attached to every retry message.
const (
	MetadataProvider      = "provider"
	MetadataEventID       = "event_id"
	MetadataAttempt       = "attempt"
	MetadataRetryCountKey = "message_retry_count"
)

// Driver names accepted by config.EventConfig.Driver.
const (
	GoChannelDriver = "go-channel"
	SQLDriver       = "sql"
)

// RetryTopic is the topic the dispatcher publishes failed-handler retries
// to, and the topic its own consumer subscribes to.
const RetryTopic = "webhook.retry"

// DeadLetterTopic collects messages that exhausted their retry ceiling.
const DeadLetterTopic = "webhook.dead_letter"

const (
	metricsNamespace = "hookrelay"
	metricsSubsystem = "eventer"

	// maxRouterRetries is a router-level circuit breaker independent of
	// the dispatcher's own application-level maxRetryAttempts: it exists
	// to stop a message from looping forever if a handler panics instead
	// of returning an error.
	maxRouterRetries = 20
)
