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

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stacklok/hookrelay/internal/recordstore"
	"github.com/stacklok/hookrelay/internal/sourcecontrol"
	"github.com/stacklok/hookrelay/pkg/api"
)

// ErrNoSyncLocation is returned by SyncOut when a record has no
// repository/path/branch to write to.
var ErrNoSyncLocation = errors.New("syncengine: record has no sync location")

// Engine ties the record store and a source-control client together to
// drive sync-out, sync-in and conflict resolution.
type Engine struct {
	Records recordstore.Store
	SC      sourcecontrol.Client
}

// NewEngine builds an Engine.
func NewEngine(records recordstore.Store, sc sourcecontrol.Client) *Engine {
	return &Engine{Records: records, SC: sc}
}

// SyncOut serializes rec to frontmatter and writes it to its sync
// location, using rec's last-synced hash as the optimistic-concurrency
// precondition. If the file changed upstream since rec was last synced,
// the write is rejected and a Conflict is recorded instead of clobbering
// whatever is there.
func (e *Engine) SyncOut(ctx context.Context, rec *api.Record) error {
	if !rec.HasSyncLocation() {
		return ErrNoSyncLocation
	}

	content, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.Key(), err)
	}

	expectedHash := ""
	if rec.LastSyncedHash != nil {
		expectedHash = *rec.LastSyncedHash
	}

	message := fmt.Sprintf("hookrelay: sync %s", rec.Key())
	newHash, err := e.SC.PutContent(ctx, rec.Repository, rec.Path, rec.Branch, content, message, expectedHash)
	if errors.Is(err, sourcecontrol.ErrConflict) {
		return e.recordSyncOutConflict(ctx, rec, content)
	}
	if err != nil {
		return fmt.Errorf("writing %s to %s/%s@%s: %w", rec.Key(), rec.Repository, rec.Path, rec.Branch, err)
	}

	return e.Records.UpdateSyncState(ctx, rec.Namespace, rec.ID, newHash, time.Now().UTC(), api.SyncSynced)
}

func (e *Engine) recordSyncOutConflict(ctx context.Context, rec *api.Record, localContent string) error {
	remoteContent, remoteHash, err := e.SC.GetContent(ctx, rec.Repository, rec.Path, rec.Branch)
	if err != nil {
		return fmt.Errorf("reading conflicting remote content for %s: %w", rec.Key(), err)
	}

	expectedHash := ""
	if rec.LastSyncedHash != nil {
		expectedHash = *rec.LastSyncedHash
	}

	conflict := &api.Conflict{
		Namespace:     rec.Namespace,
		RecordID:      rec.ID,
		Repository:    rec.Repository,
		Path:          rec.Path,
		Branch:        rec.Branch,
		ExpectedHash:  expectedHash,
		ObservedHash:  remoteHash,
		LocalContent:  localContent,
		RemoteContent: remoteContent,
	}
	if err := e.Records.CreateConflict(ctx, conflict); err != nil {
		return fmt.Errorf("recording conflict for %s: %w", rec.Key(), err)
	}

	zerolog.Ctx(ctx).Info().Str("record", rec.Key()).Str("conflict_id", conflict.ID).
		Msg("sync-out conflict: remote changed since last sync")

	return e.Records.UpdateSyncState(ctx, rec.Namespace, rec.ID, expectedHash, time.Now().UTC(), api.SyncConflict)
}
