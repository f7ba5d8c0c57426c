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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/hookrelay/pkg/api"
)

const getRecordQuery = `
SELECT namespace, id, type, data, content, repository, path, branch, last_synced_hash, last_synced_at, sync_status
FROM records WHERE namespace = $1 AND id = $2
`

// GetRecord implements Store.
func (s *SQLStore) GetRecord(ctx context.Context, namespace, id string) (*api.Record, error) {
	row := s.db.QueryRowContext(ctx, getRecordQuery, namespace, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return rec, nil
}

const getRecordByLocationQuery = `
SELECT namespace, id, type, data, content, repository, path, branch, last_synced_hash, last_synced_at, sync_status
FROM records WHERE repository = $1 AND path = $2 AND branch = $3
`

// GetRecordByLocation implements Store.
func (s *SQLStore) GetRecordByLocation(ctx context.Context, repo, path, branch string) (*api.Record, error) {
	row := s.db.QueryRowContext(ctx, getRecordByLocationQuery, repo, path, branch)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting record by location: %w", err)
	}
	return rec, nil
}

const upsertRecordQuery = `
INSERT INTO records (namespace, id, type, data, content, repository, path, branch, last_synced_hash, last_synced_at, sync_status, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (namespace, id) DO UPDATE SET
	type = EXCLUDED.type,
	data = EXCLUDED.data,
	content = EXCLUDED.content,
	repository = EXCLUDED.repository,
	path = EXCLUDED.path,
	branch = EXCLUDED.branch,
	last_synced_hash = EXCLUDED.last_synced_hash,
	last_synced_at = EXCLUDED.last_synced_at,
	sync_status = EXCLUDED.sync_status,
	updated_at = now()
`

// UpsertRecord implements Store.
func (s *SQLStore) UpsertRecord(ctx context.Context, rec *api.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshaling record data: %w", err)
	}
	if rec.SyncStatus == "" {
		rec.SyncStatus = api.SyncUnsynced
	}

	_, err = s.db.ExecContext(ctx, upsertRecordQuery,
		rec.Namespace, rec.ID, rec.Type, data, rec.Content,
		nullString(rec.Repository), nullString(rec.Path), nullString(rec.Branch),
		nullStringPtr(rec.LastSyncedHash), nullTimePtr(rec.LastSyncedAt), string(rec.SyncStatus))
	if err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

const updateSyncStateQuery = `
UPDATE records SET last_synced_hash = $3, last_synced_at = $4, sync_status = $5, updated_at = now()
WHERE namespace = $1 AND id = $2
`

// UpdateSyncState implements Store.
func (s *SQLStore) UpdateSyncState(ctx context.Context, namespace, id, hash string, syncedAt time.Time, status api.SyncStatus) error {
	_, err := s.db.ExecContext(ctx, updateSyncStateQuery, namespace, id, hash, syncedAt, string(status))
	if err != nil {
		return fmt.Errorf("updating sync state: %w", err)
	}
	return nil
}

// ListRecords implements Store.
func (s *SQLStore) ListRecords(ctx context.Context, filter RecordFilter) ([]*api.Record, error) {
	query := `SELECT namespace, id, type, data, content, repository, path, branch, last_synced_hash, last_synced_at, sync_status FROM records WHERE true`
	var args []any
	n := 1

	if filter.Namespace != "" {
		query += fmt.Sprintf(" AND namespace = $%d", n)
		args = append(args, filter.Namespace)
		n++
	}
	if filter.SyncStatus != "" {
		query += fmt.Sprintf(" AND sync_status = $%d", n)
		args = append(args, string(filter.SyncStatus))
		n++
	}
	query += " ORDER BY namespace, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []*api.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const createConflictQuery = `
INSERT INTO sync_conflicts (id, namespace, record_id, repository, path, branch, expected_hash, observed_hash, local_content, remote_content, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// CreateConflict implements Store.
func (s *SQLStore) CreateConflict(ctx context.Context, c *api.Conflict) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = api.ConflictPending
	}

	_, err := s.db.ExecContext(ctx, createConflictQuery,
		c.ID, c.Namespace, c.RecordID, c.Repository, c.Path, c.Branch,
		c.ExpectedHash, c.ObservedHash, c.LocalContent, c.RemoteContent, string(c.Status), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating conflict: %w", err)
	}
	return nil
}

const getConflictQuery = `
SELECT id, namespace, record_id, repository, path, branch, expected_hash, observed_hash, local_content, remote_content, status, strategy, resolved_at, error, created_at
FROM sync_conflicts WHERE id = $1
`

// GetConflict implements Store.
func (s *SQLStore) GetConflict(ctx context.Context, id string) (*api.Conflict, error) {
	row := s.db.QueryRowContext(ctx, getConflictQuery, id)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conflict: %w", err)
	}
	return c, nil
}

const listOpenConflictsQuery = `
SELECT id, namespace, record_id, repository, path, branch, expected_hash, observed_hash, local_content, remote_content, status, strategy, resolved_at, error, created_at
FROM sync_conflicts WHERE status = $1 AND ($2 = '' OR namespace = $2)
ORDER BY created_at
`

// ListOpenConflicts implements Store.
func (s *SQLStore) ListOpenConflicts(ctx context.Context, namespace string) ([]*api.Conflict, error) {
	rows, err := s.db.QueryContext(ctx, listOpenConflictsQuery, string(api.ConflictPending), namespace)
	if err != nil {
		return nil, fmt.Errorf("listing open conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*api.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conflict row: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

const resolveConflictQuery = `
UPDATE sync_conflicts SET status = $2, strategy = $3, resolved_at = $4, error = $5 WHERE id = $1
`

// ResolveConflict implements Store.
func (s *SQLStore) ResolveConflict(ctx context.Context, id string, strategy api.ResolutionStrategy, status api.ConflictStatus, errMsg *string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, resolveConflictQuery, id, string(status), string(strategy), now, errMsg)
	if err != nil {
		return fmt.Errorf("resolving conflict: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*api.Record, error) {
	var rec api.Record
	var data []byte
	var repository, path, branch, lastSyncedHash sql.NullString
	var lastSyncedAt sql.NullTime
	var syncStatus string

	err := row.Scan(&rec.Namespace, &rec.ID, &rec.Type, &data, &rec.Content,
		&repository, &path, &branch, &lastSyncedHash, &lastSyncedAt, &syncStatus)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &rec.Data); err != nil {
		return nil, fmt.Errorf("unmarshaling record data: %w", err)
	}
	rec.Repository = repository.String
	rec.Path = path.String
	rec.Branch = branch.String
	if lastSyncedHash.Valid {
		h := lastSyncedHash.String
		rec.LastSyncedHash = &h
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		rec.LastSyncedAt = &t
	}
	rec.SyncStatus = api.SyncStatus(syncStatus)
	return &rec, nil
}

func scanConflict(row rowScanner) (*api.Conflict, error) {
	var c api.Conflict
	var status string
	var strategy sql.NullString
	var resolvedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(&c.ID, &c.Namespace, &c.RecordID, &c.Repository, &c.Path, &c.Branch,
		&c.ExpectedHash, &c.ObservedHash, &c.LocalContent, &c.RemoteContent,
		&status, &strategy, &resolvedAt, &errMsg, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Status = api.ConflictStatus(status)
	if strategy.Valid {
		c.Strategy = api.ResolutionStrategy(strategy.String)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	if errMsg.Valid {
		m := errMsg.String
		c.Error = &m
	}
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
