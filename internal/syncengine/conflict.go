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

	"github.com/stacklok/hookrelay/pkg/api"
)

// ErrManualContentRequired is returned by Resolve when strategy is
// StrategyManual and the caller didn't supply resolvedContent.
var ErrManualContentRequired = errors.New("syncengine: manual resolution requires resolved content")

// Resolve applies strategy to the conflict identified by conflictID and
// writes the outcome back to the source-control file, the record, and the
// conflict row itself. resolvedContent is only consulted for
// StrategyManual, where the caller has already produced the text to write.
//
// theirs never writes upstream -- the remote file already holds the content
// that wins, so resolving it is a read-and-apply, not a push. Every other
// strategy force-pushes, and does so against the hash observed right now,
// not the one captured when the conflict was first detected: if the
// external file has moved again in the meantime, the push should still
// win against whatever is there, not fail against a stale precondition.
func (e *Engine) Resolve(ctx context.Context, conflictID string, strategy api.ResolutionStrategy, resolvedContent *string) error {
	c, err := e.Records.GetConflict(ctx, conflictID)
	if err != nil {
		return fmt.Errorf("loading conflict %s: %w", conflictID, err)
	}

	rec, err := e.Records.GetRecord(ctx, c.Namespace, c.RecordID)
	if err != nil {
		return fmt.Errorf("loading record for conflict %s: %w", conflictID, err)
	}

	if strategy == api.StrategyTheirs {
		return e.resolveTheirs(ctx, conflictID, c, rec)
	}

	content, applyToRecord, err := resolvedContentFor(strategy, c, rec, resolvedContent)
	if err != nil {
		failMsg := err.Error()
		_ = e.Records.ResolveConflict(ctx, conflictID, strategy, api.ConflictFailed, &failMsg)
		return err
	}

	_, parentHash, err := e.SC.GetContent(ctx, c.Repository, c.Path, c.Branch)
	if err != nil {
		failMsg := err.Error()
		_ = e.Records.ResolveConflict(ctx, conflictID, strategy, api.ConflictFailed, &failMsg)
		return fmt.Errorf("reading current external hash for conflict %s: %w", conflictID, err)
	}

	message := fmt.Sprintf("hookrelay: resolve conflict for %s (%s)", rec.Key(), strategy)
	newHash, err := e.SC.PutContent(ctx, c.Repository, c.Path, c.Branch, content, message, parentHash)
	if err != nil {
		failMsg := err.Error()
		_ = e.Records.ResolveConflict(ctx, conflictID, strategy, api.ConflictFailed, &failMsg)
		return fmt.Errorf("writing resolution for conflict %s: %w", conflictID, err)
	}

	if applyToRecord != nil {
		rec.Data = applyToRecord.Data
		rec.Content = applyToRecord.Body
		if err := e.Records.UpsertRecord(ctx, rec); err != nil {
			return fmt.Errorf("updating record after resolving conflict %s: %w", conflictID, err)
		}
	}

	if err := e.Records.UpdateSyncState(ctx, rec.Namespace, rec.ID, newHash, time.Now().UTC(), api.SyncSynced); err != nil {
		return fmt.Errorf("updating sync state after resolving conflict %s: %w", conflictID, err)
	}

	return e.Records.ResolveConflict(ctx, conflictID, strategy, api.ConflictResolved, nil)
}

// resolveTheirs reads the current remote file and overwrites the local
// record with it; nothing is written upstream.
func (e *Engine) resolveTheirs(ctx context.Context, conflictID string, c *api.Conflict, rec *api.Record) error {
	remoteContent, remoteHash, err := e.SC.GetContent(ctx, c.Repository, c.Path, c.Branch)
	if err != nil {
		failMsg := err.Error()
		_ = e.Records.ResolveConflict(ctx, conflictID, api.StrategyTheirs, api.ConflictFailed, &failMsg)
		return fmt.Errorf("reading remote content for conflict %s: %w", conflictID, err)
	}

	decoded, err := Decode(remoteContent)
	if err != nil {
		failMsg := err.Error()
		_ = e.Records.ResolveConflict(ctx, conflictID, api.StrategyTheirs, api.ConflictFailed, &failMsg)
		return fmt.Errorf("decoding remote content for conflict %s: %w", conflictID, err)
	}

	rec.Data = decoded.Data
	rec.Content = decoded.Body
	if err := e.Records.UpsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("updating record after resolving conflict %s: %w", conflictID, err)
	}

	if err := e.Records.UpdateSyncState(ctx, rec.Namespace, rec.ID, remoteHash, time.Now().UTC(), api.SyncSynced); err != nil {
		return fmt.Errorf("updating sync state after resolving conflict %s: %w", conflictID, err)
	}

	return e.Records.ResolveConflict(ctx, conflictID, api.StrategyTheirs, api.ConflictResolved, nil)
}

// resolvedContentFor computes the content to force-push upstream for
// strategy, and, for merge and manual, the decoded form to apply back to
// the record. ours leaves the record as-is: its own content is what's
// being pushed. theirs is handled separately by resolveTheirs and never
// reaches here.
func resolvedContentFor(strategy api.ResolutionStrategy, c *api.Conflict, rec *api.Record, resolvedContent *string) (string, *Decoded, error) {
	switch strategy {
	case api.StrategyOurs:
		content, err := Encode(rec)
		return content, nil, err

	case api.StrategyMerge:
		return mergeContent(c, rec)

	case api.StrategyManual:
		if resolvedContent == nil {
			return "", nil, ErrManualContentRequired
		}
		decoded, err := Decode(*resolvedContent)
		if err != nil {
			return "", nil, fmt.Errorf("decoding manually resolved content: %w", err)
		}
		return *resolvedContent, decoded, nil

	default:
		return "", nil, fmt.Errorf("unknown resolution strategy %q", strategy)
	}
}

// mergeContent performs a field-level merge: remote's data is the base,
// local's data wins per-key on any field it also set, and local's body
// text is kept since it's the more recently authored side from this
// service's point of view. This is a best-effort reconciliation, not a
// true three-way merge -- operators who need exact history-aware merging
// should resolve manually instead.
func mergeContent(c *api.Conflict, rec *api.Record) (string, *Decoded, error) {
	remote, err := Decode(c.RemoteContent)
	if err != nil {
		return "", nil, fmt.Errorf("decoding remote content for merge: %w", err)
	}

	merged := make(map[string]any, len(remote.Data)+len(rec.Data))
	for k, v := range remote.Data {
		merged[k] = v
	}
	for k, v := range rec.Data {
		merged[k] = v
	}

	mergedRecord := &api.Record{
		Namespace: rec.Namespace,
		ID:        rec.ID,
		Type:      rec.Type,
		Data:      merged,
		Content:   rec.Content,
	}
	content, err := Encode(mergedRecord)
	if err != nil {
		return "", nil, fmt.Errorf("encoding merged content: %w", err)
	}

	return content, &Decoded{ID: rec.Key(), Type: rec.Type, Data: merged, Body: rec.Content}, nil
}
