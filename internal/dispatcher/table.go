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

// Package dispatcher routes verified webhook envelopes to typed handlers
// and retries failed handlers with backoff, ultimately dead-lettering
// whatever never succeeds.
package dispatcher

import (
	"context"
	"sync"

	"github.com/stacklok/hookrelay/pkg/api"
)

// HandlerFunc processes one verified envelope. A returned error schedules
// a retry; a nil error acknowledges the event as fully handled and its
// result is carried back to the ingress caller as the handler's result.
type HandlerFunc func(ctx context.Context, env api.Envelope) (any, error)

// anyEventType is the routing-table key a handler registers under to
// receive every event type for its provider.
const anyEventType = "*"

// Table is a routing table from (provider, event type) to handler,
// generalizing the rule-matching idiom of routing a typed payload to the
// code that knows how to act on it: a provider can register a default
// handler for all its event types, or override specific ones.
type Table struct {
	mu       sync.RWMutex
	handlers map[api.Provider]map[string]HandlerFunc
}

// NewTable builds an empty routing table.
func NewTable() *Table {
	return &Table{handlers: make(map[api.Provider]map[string]HandlerFunc)}
}

// Register binds handler to every event of eventType from provider.
// eventType may be "*" to match any event type not more specifically
// registered.
func (t *Table) Register(provider api.Provider, eventType string, handler HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handlers[provider] == nil {
		t.handlers[provider] = make(map[string]HandlerFunc)
	}
	t.handlers[provider][eventType] = handler
}

// Lookup returns the handler registered for (provider, eventType), falling
// back to the provider's wildcard handler, and reports whether one was
// found at all.
func (t *Table) Lookup(provider api.Provider, eventType string) (HandlerFunc, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byType, ok := t.handlers[provider]
	if !ok {
		return nil, false
	}
	if h, ok := byType[eventType]; ok {
		return h, true
	}
	if h, ok := byType[anyEventType]; ok {
		return h, true
	}
	return nil, false
}
