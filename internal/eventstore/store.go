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

// Package eventstore persists the webhook_events table: the idempotency
// check on ingest and the processed/failed bookkeeping the dispatcher
// needs for retries.
package eventstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/stacklok/hookrelay/pkg/api"
)

// ErrNotFound is returned when a lookup finds no matching event.
var ErrNotFound = errors.New("eventstore: event not found")

// ListFilter narrows the rows List returns.
type ListFilter struct {
	Provider       api.Provider // empty matches any provider
	ProcessedOnly  bool
	UnprocessedOnly bool
	Limit          int
	Offset         int
}

// Store is the persistence surface ingress and the dispatcher need out of
// the webhook_events table. Exists/Insert together give the atomic
// idempotency check: the
// unique (provider, event_id) constraint is what actually enforces
// at-most-once insertion under races, Exists is just the probe that lets a
// duplicate delivery be acknowledged without attempting the insert.
type Store interface {
	CheckHealth() error

	Exists(ctx context.Context, provider api.Provider, eventID string) (bool, error)
	Insert(ctx context.Context, ev *api.WebhookEvent) error
	Get(ctx context.Context, provider api.Provider, eventID string) (*api.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	List(ctx context.Context, filter ListFilter) ([]*api.WebhookEvent, error)
}

// DBTX is satisfied by both *sql.DB and *sql.Tx, the same split the record
// store uses. NewSQLStore always passes a *sql.DB.
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
