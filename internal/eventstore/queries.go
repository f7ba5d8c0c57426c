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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/stacklok/hookrelay/pkg/api"
)

const existsQuery = `SELECT EXISTS(SELECT 1 FROM webhook_events WHERE provider = $1 AND event_id = $2)`

// Exists implements Store.
func (s *SQLStore) Exists(ctx context.Context, provider api.Provider, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, existsQuery, string(provider), eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking event existence: %w", err)
	}
	return exists, nil
}

const insertQuery = `
INSERT INTO webhook_events (id, provider, event_id, event_type, payload, signature, processed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, false, $7)
`

// Insert implements Store. It is the authoritative idempotency guard: a
// second insert for the same (provider, event_id) fails the unique
// constraint and is surfaced as ErrDuplicate, whether the second insert
// came from a concurrent race or a later duplicate delivery.
func (s *SQLStore) Insert(ctx context.Context, ev *api.WebhookEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, insertQuery,
		ev.ID, string(ev.Provider), ev.EventID, ev.EventType, ev.Payload, ev.Signature, ev.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting webhook event: %w", err)
	}
	return nil
}

// ErrDuplicate is returned by Insert when the (provider, event_id) pair
// already exists, distinguishing a duplicate delivery from a transport
// error for the caller.
var ErrDuplicate = errors.New("eventstore: duplicate event")

const getQuery = `
SELECT id, provider, event_id, event_type, payload, signature, processed, processed_at, error, created_at
FROM webhook_events WHERE provider = $1 AND event_id = $2
`

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, provider api.Provider, eventID string) (*api.WebhookEvent, error) {
	row := s.db.QueryRowContext(ctx, getQuery, string(provider), eventID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting webhook event: %w", err)
	}
	return ev, nil
}

const markProcessedQuery = `
UPDATE webhook_events SET processed = true, processed_at = $2, error = NULL WHERE id = $1
`

// MarkProcessed implements Store.
func (s *SQLStore) MarkProcessed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, markProcessedQuery, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("marking event processed: %w", err)
	}
	return nil
}

const markFailedQuery = `
UPDATE webhook_events SET processed = false, error = $2 WHERE id = $1
`

// MarkFailed implements Store.
func (s *SQLStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := s.db.ExecContext(ctx, markFailedQuery, id, errMsg)
	if err != nil {
		return fmt.Errorf("marking event failed: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]*api.WebhookEvent, error) {
	query := `SELECT id, provider, event_id, event_type, payload, signature, processed, processed_at, error, created_at FROM webhook_events WHERE true`
	var args []any
	argN := 1

	if filter.Provider != "" {
		query += fmt.Sprintf(" AND provider = $%d", argN)
		args = append(args, string(filter.Provider))
		argN++
	}
	if filter.ProcessedOnly {
		query += " AND processed = true"
	}
	if filter.UnprocessedOnly {
		query += " AND processed = false"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
		argN++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing webhook events: %w", err)
	}
	defer rows.Close()

	var events []*api.WebhookEvent
	for rows.Next() {
		ev, err := scanEventRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook event row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// rowScanner is the subset of *sql.Row and *sql.Rows that Scan needs.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*api.WebhookEvent, error) {
	return scanInto(row)
}

func scanEventRows(rows *sql.Rows) (*api.WebhookEvent, error) {
	return scanInto(rows)
}

func scanInto(row rowScanner) (*api.WebhookEvent, error) {
	var ev api.WebhookEvent
	var provider string
	err := row.Scan(
		&ev.ID, &provider, &ev.EventID, &ev.EventType, &ev.Payload, &ev.Signature,
		&ev.Processed, &ev.ProcessedAt, &ev.Error, &ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Provider = api.Provider(provider)
	return &ev, nil
}
