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

// SyncIn reacts to a source-control push event: it re-reads path on
// branch of repo and reconciles it with whatever record is mirrored there.
// A record with no sync location simply isn't tracked here, so a push with
// no matching record is a silent no-op.
func (e *Engine) SyncIn(ctx context.Context, repo, path, branch string) error {
	log := zerolog.Ctx(ctx).With().Str("repository", repo).Str("path", path).Str("branch", branch).Logger()

	rec, err := e.Records.GetRecordByLocation(ctx, repo, path, branch)
	if errors.Is(err, recordstore.ErrNotFound) {
		log.Debug().Msg("push does not match any tracked record")
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up record for %s/%s@%s: %w", repo, path, branch, err)
	}

	remoteContent, remoteHash, err := e.SC.GetContent(ctx, repo, path, branch)
	if errors.Is(err, sourcecontrol.ErrNotFound) {
		log.Info().Str("record", rec.Key()).Msg("tracked file deleted upstream, leaving record as last synced")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s/%s@%s: %w", repo, path, branch, err)
	}

	if rec.LastSyncedHash != nil && *rec.LastSyncedHash == remoteHash {
		log.Debug().Str("record", rec.Key()).Msg("no change since last sync")
		return nil
	}

	decoded, err := Decode(remoteContent)
	if err != nil {
		return fmt.Errorf("decoding %s/%s@%s: %w", repo, path, branch, err)
	}

	if rec.SyncStatus == api.SyncDirty {
		return e.recordSyncInConflict(ctx, rec, remoteContent, remoteHash)
	}

	rec.Data = decoded.Data
	rec.Content = decoded.Body
	if err := e.Records.UpsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("applying remote change to %s: %w", rec.Key(), err)
	}

	log.Info().Str("record", rec.Key()).Msg("applied remote change")
	return e.Records.UpdateSyncState(ctx, rec.Namespace, rec.ID, remoteHash, time.Now().UTC(), api.SyncSynced)
}

func (e *Engine) recordSyncInConflict(ctx context.Context, rec *api.Record, remoteContent, remoteHash string) error {
	localContent, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("encoding local copy of %s: %w", rec.Key(), err)
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
		Msg("sync-in conflict: local and remote both changed since last sync")

	return e.Records.UpdateSyncState(ctx, rec.Namespace, rec.ID, expectedHash, time.Now().UTC(), api.SyncConflict)
}
