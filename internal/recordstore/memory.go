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

package recordstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/hookrelay/pkg/api"
)

// MemoryStore is an in-memory Store used by sync engine tests.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]*api.Record // keyed by namespace/id
	conflicts map[string]*api.Conflict
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*api.Record),
		conflicts: make(map[string]*api.Conflict),
	}
}

// CheckHealth implements Store.
func (*MemoryStore) CheckHealth() error { return nil }

func recKey(namespace, id string) string { return namespace + "/" + id }

// GetRecord implements Store.
func (m *MemoryStore) GetRecord(_ context.Context, namespace, id string) (*api.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recKey(namespace, id)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

// GetRecordByLocation implements Store.
func (m *MemoryStore) GetRecordByLocation(_ context.Context, repo, path, branch string) (*api.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.Repository == repo && rec.Path == path && rec.Branch == branch {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

// UpsertRecord implements Store.
func (m *MemoryStore) UpsertRecord(_ context.Context, rec *api.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.SyncStatus == "" {
		rec.SyncStatus = api.SyncUnsynced
	}
	clone := *rec
	m.records[recKey(rec.Namespace, rec.ID)] = &clone
	return nil
}

// UpdateSyncState implements Store.
func (m *MemoryStore) UpdateSyncState(_ context.Context, namespace, id, hash string, syncedAt time.Time, status api.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recKey(namespace, id)]
	if !ok {
		return ErrNotFound
	}
	h := hash
	t := syncedAt
	rec.LastSyncedHash = &h
	rec.LastSyncedAt = &t
	rec.SyncStatus = status
	return nil
}

// ListRecords implements Store.
func (m *MemoryStore) ListRecords(_ context.Context, filter RecordFilter) ([]*api.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*api.Record
	for _, rec := range m.records {
		if filter.Namespace != "" && rec.Namespace != filter.Namespace {
			continue
		}
		if filter.SyncStatus != "" && rec.SyncStatus != filter.SyncStatus {
			continue
		}
		clone := *rec
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

// CreateConflict implements Store.
func (m *MemoryStore) CreateConflict(_ context.Context, c *api.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = api.ConflictPending
	}
	clone := *c
	m.conflicts[c.ID] = &clone
	return nil
}

// GetConflict implements Store.
func (m *MemoryStore) GetConflict(_ context.Context, id string) (*api.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conflicts[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *c
	return &clone, nil
}

// ListOpenConflicts implements Store.
func (m *MemoryStore) ListOpenConflicts(_ context.Context, namespace string) ([]*api.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var open []*api.Conflict
	for _, c := range m.conflicts {
		if c.Status != api.ConflictPending {
			continue
		}
		if namespace != "" && c.Namespace != namespace {
			continue
		}
		clone := *c
		open = append(open, &clone)
	}
	return open, nil
}

// ResolveConflict implements Store.
func (m *MemoryStore) ResolveConflict(_ context.Context, id string, strategy api.ResolutionStrategy, status api.ConflictStatus, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conflicts[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	c.Status = status
	c.Strategy = strategy
	c.ResolvedAt = &now
	c.Error = errMsg
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLStore)(nil)
