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

package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/hookrelay/pkg/api"
)

// MemoryStore is an in-memory Store used by tests that exercise the
// dispatcher or ingress packages without a running Postgres instance.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]*api.WebhookEvent // keyed by provider+"/"+eventID
	byID   map[string]*api.WebhookEvent
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]*api.WebhookEvent),
		byID:   make(map[string]*api.WebhookEvent),
	}
}

func memKey(provider api.Provider, eventID string) string {
	return string(provider) + "/" + eventID
}

// CheckHealth implements Store.
func (*MemoryStore) CheckHealth() error { return nil }

// Exists implements Store.
func (m *MemoryStore) Exists(_ context.Context, provider api.Provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[memKey(provider, eventID)]
	return ok, nil
}

// Insert implements Store.
func (m *MemoryStore) Insert(_ context.Context, ev *api.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(ev.Provider, ev.EventID)
	if _, exists := m.events[key]; exists {
		return ErrDuplicate
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	clone := *ev
	m.events[key] = &clone
	m.byID[clone.ID] = &clone
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, provider api.Provider, eventID string) (*api.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[memKey(provider, eventID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *ev
	return &clone, nil
}

// MarkProcessed implements Store.
func (m *MemoryStore) MarkProcessed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	ev.Processed = true
	ev.ProcessedAt = &now
	ev.Error = nil
	return nil
}

// MarkFailed implements Store.
func (m *MemoryStore) MarkFailed(_ context.Context, id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	ev.Processed = false
	ev.Error = &errMsg
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, filter ListFilter) ([]*api.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*api.WebhookEvent
	for _, ev := range m.events {
		if filter.Provider != "" && ev.Provider != filter.Provider {
			continue
		}
		if filter.ProcessedOnly && !ev.Processed {
			continue
		}
		if filter.UnprocessedOnly && ev.Processed {
			continue
		}
		clone := *ev
		matched = append(matched, &clone)
	}

	if filter.Offset > 0 && filter.Offset < len(matched) {
		matched = matched[filter.Offset:]
	} else if filter.Offset >= len(matched) {
		matched = nil
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLStore)(nil)
