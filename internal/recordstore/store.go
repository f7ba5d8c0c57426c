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

// Package recordstore persists the records and sync_conflicts tables that
// back the bidirectional sync engine.
package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stacklok/hookrelay/pkg/api"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("recordstore: not found")

// RecordFilter narrows the rows ListRecords returns.
type RecordFilter struct {
	Namespace  string
	SyncStatus api.SyncStatus // empty matches any status
	Limit      int
	Offset     int
}

// Store is the persistence surface the sync engine needs for records and
// the conflicts they can produce.
type Store interface {
	CheckHealth() error

	GetRecord(ctx context.Context, namespace, id string) (*api.Record, error)
	GetRecordByLocation(ctx context.Context, repo, path, branch string) (*api.Record, error)
	UpsertRecord(ctx context.Context, rec *api.Record) error
	UpdateSyncState(ctx context.Context, namespace, id, hash string, syncedAt time.Time, status api.SyncStatus) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]*api.Record, error)

	CreateConflict(ctx context.Context, c *api.Conflict) error
	GetConflict(ctx context.Context, id string) (*api.Conflict, error)
	ListOpenConflicts(ctx context.Context, namespace string) ([]*api.Conflict, error)
	ResolveConflict(ctx context.Context, id string, strategy api.ResolutionStrategy, status api.ConflictStatus, errMsg *string) error
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is the lib/pq backed implementation of Store.
type SQLStore struct {
	db DBTX
	rw *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, rw: db}
}

// CheckHealth implements Store.
func (s *SQLStore) CheckHealth() error {
	return s.rw.Ping()
}
