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

package syncengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/hookrelay/internal/recordstore"
	"github.com/stacklok/hookrelay/internal/sourcecontrol"
	"github.com/stacklok/hookrelay/internal/syncengine"
	"github.com/stacklok/hookrelay/pkg/api"
)

func newTestEngine() (*syncengine.Engine, *recordstore.MemoryStore, *sourcecontrol.FakeClient) {
	records := recordstore.NewMemoryStore()
	sc := sourcecontrol.NewFakeClient()
	return syncengine.NewEngine(records, sc), records, sc
}

func baseRecord() *api.Record {
	return &api.Record{
		Namespace:  "incidents",
		ID:         "INC-1",
		Type:       "incident",
		Data:       map[string]any{"severity": "sev2"},
		Content:    "first draft",
		Repository: "acme/runbooks",
		Path:       "incidents/INC-1.md",
		Branch:     "main",
	}
}

func TestSyncOut_FirstWriteCreatesFile(t *testing.T) {
	ctx := context.Background()
	engine, records, sc := newTestEngine()
	rec := baseRecord()
	require.NoError(t, records.UpsertRecord(ctx, rec))

	require.NoError(t, engine.SyncOut(ctx, rec))

	content, _, err := sc.GetContent(ctx, rec.Repository, rec.Path, rec.Branch)
	require.NoError(t, err)
	assert.Contains(t, content, "first draft")

	got, err := records.GetRecord(ctx, rec.Namespace, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, api.SyncSynced, got.SyncStatus)
	require.NotNil(t, got.LastSyncedHash)
}

func TestSyncIn_NoMatchingRecordIsNoop(t *testing.T) {
	ctx := context.Background()
	engine, _, sc := newTestEngine()
	sc.Seed("acme/runbooks", "incidents/unknown.md", "main", "---\n$id: x\n$type: t\n---\nbody")

	err := engine.SyncIn(ctx, "acme/runbooks", "incidents/unknown.md", "main")
	assert.NoError(t, err)
}

func TestSyncIn_NoChangeSinceLastSyncIsNoop(t *testing.T) {
	ctx := context.Background()
	engine, records, _ := newTestEngine()
	rec := baseRecord()
	require.NoError(t, records.UpsertRecord(ctx, rec))
	require.NoError(t, engine.SyncOut(ctx, rec))

	rec, err := records.GetRecord(ctx, rec.Namespace, rec.ID)
	require.NoError(t, err)

	err = engine.SyncIn(ctx, rec.Repository, rec.Path, rec.Branch)
	require.NoError(t, err)

	after, err := records.GetRecord(ctx, rec.Namespace, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, api.SyncSynced, after.SyncStatus)
}

func TestSyncIn_AppliesCleanRemoteChange(t *testing.T) {
	ctx := context.Background()
	engine, records, sc := newTestEngine()
	rec := baseRecord()
	require.NoError(t, records.UpsertRecord(ctx, rec))
	require.NoError(t, engine.SyncOut(ctx, rec))

	updated := &api.Record{Namespace: rec.Namespace, ID: rec.ID, Type: rec.Type,
		Data: map[string]any{"severity": "sev1"}, Content: "updated upstream"}
	newContent, err := syncengine.Encode(updated)
	require.NoError(t, err)
	sc.Seed(rec.Repository, rec.Path, rec.Branch, newContent)

	require.NoError(t, engine.SyncIn(ctx, rec.Repository, rec.Path, rec.Branch))

	after, err := records.GetRecord(ctx, rec.Namespace, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "sev1", after.Data["severity"])
	assert.Equal(t, "updated upstream", after.Content)
	assert.Equal(t, api.SyncSynced, after.SyncStatus)
}

func TestSyncIn_DivergentEditsCreateConflict(t *testing.T) {
	ctx := context.Background()
	engine, records, sc := newTestEngine()
	rec := baseRecord()
	require.NoError(t, records.UpsertRecord(ctx, rec))
	require.NoError(t, engine.SyncOut(ctx, rec))

	rec, err := records.GetRecord(ctx, rec.Namespace, rec.ID)
	require.NoError(t, err)
	rec.Content = "locally edited"
	rec.SyncStatus = api.SyncDirty
	require.NoError(t, records.UpsertRecord(ctx, rec))

	remote := &api.Record{Namespace: rec.Namespace, ID: rec.ID, Type: rec.Type,
		Data: rec.Data, Content: "remotely edited"}
	remoteEncoded, err := syncengine.Encode(remote)
	require.NoError(t, err)
	sc.Seed(rec.Repository, rec.Path, rec.Branch, remoteEncoded)

	require.NoError(t, engine.SyncIn(ctx, rec.Repository, rec.Path, rec.Branch))

	after, err := records.GetRecord(ctx, rec.Namespace, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, api.SyncConflict, after.SyncStatus)

	open, err := records.ListOpenConflicts(ctx, rec.Namespace)
	require.NoError(t, err)
	require.Len(t, open, 1)
	expectedLocal, err := syncengine.Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, expectedLocal, open[0].LocalContent)
	assert.Contains(t, open[0].RemoteContent, "remotely edited")
}

func TestResolve_OursWritesLocalContentUpstream(t *testing.T) {
	ctx := context.Background()
	engine, records, sc := setupConflict(t)

	conflicts, err := records.ListOpenConflicts(ctx, "incidents")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	require.NoError(t, engine.Resolve(ctx, conflicts[0].ID, api.StrategyOurs, nil))

	resolved, err := records.GetConflict(ctx, conflicts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, api.ConflictResolved, resolved.Status)

	content, _, err := sc.GetContent(ctx, "acme/runbooks", "incidents/INC-1.md", "main")
	require.NoError(t, err)
	assert.Contains(t, content, "locally edited")
}

func TestResolve_TheirsOverwritesRecordFromRemote(t *testing.T) {
	ctx := context.Background()
	engine, records, _ := setupConflict(t)

	conflicts, err := records.ListOpenConflicts(ctx, "incidents")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	require.NoError(t, engine.Resolve(ctx, conflicts[0].ID, api.StrategyTheirs, nil))

	rec, err := records.GetRecord(ctx, "incidents", "INC-1")
	require.NoError(t, err)
	assert.Equal(t, "remotely edited", rec.Content)
	assert.Equal(t, api.SyncSynced, rec.SyncStatus)
}

func TestResolve_MergeCombinesFieldsWithLocalPriority(t *testing.T) {
	ctx := context.Background()
	engine, records, sc := newTestEngine()
	rec := &api.Record{
		Namespace: "incidents", ID: "INC-1", Type: "incident",
		Data: map[string]any{"title": "Local", "notes": "keep"}, Content: "local body",
		Repository: "acme/runbooks", Path: "incidents/INC-1.md", Branch: "main",
	}
	require.NoError(t, records.UpsertRecord(ctx, rec))
	require.NoError(t, engine.SyncOut(ctx, rec))

	rec, err := records.GetRecord(ctx, rec.Namespace, rec.ID)
	require.NoError(t, err)
	rec.SyncStatus = api.SyncDirty
	require.NoError(t, records.UpsertRecord(ctx, rec))

	remote := &api.Record{Namespace: rec.Namespace, ID: rec.ID, Type: rec.Type,
		Data: map[string]any{"title": "Remote", "extra": "added"}, Content: "remote body"}
	remoteEncoded, err := syncengine.Encode(remote)
	require.NoError(t, err)
	sc.Seed(rec.Repository, rec.Path, rec.Branch, remoteEncoded)
	require.NoError(t, engine.SyncIn(ctx, rec.Repository, rec.Path, rec.Branch))

	conflicts, err := records.ListOpenConflicts(ctx, "incidents")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	require.NoError(t, engine.Resolve(ctx, conflicts[0].ID, api.StrategyMerge, nil))

	resolved, err := records.GetConflict(ctx, conflicts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, api.ConflictResolved, resolved.Status)
	assert.Equal(t, api.StrategyMerge, resolved.Strategy)

	after, err := records.GetRecord(ctx, "incidents", "INC-1")
	require.NoError(t, err)
	assert.Equal(t, "Local", after.Data["title"])
	assert.Equal(t, "keep", after.Data["notes"])
	assert.Equal(t, "added", after.Data["extra"])
	assert.Equal(t, "local body", after.Content)
	assert.Equal(t, api.SyncSynced, after.SyncStatus)
}

func TestResolve_OursForcePushesAgainstCurrentlyObservedHash(t *testing.T) {
	ctx := context.Background()
	engine, records, sc := setupConflict(t)

	conflicts, err := records.ListOpenConflicts(ctx, "incidents")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	conflict := conflicts[0]

	// Move the external file again after the conflict was detected, so the
	// hash recorded on the Conflict row is now stale. ours must still
	// succeed by re-reading the current hash rather than trusting the
	// stale one stored at detection time.
	movedAgain := &api.Record{Namespace: "incidents", ID: "INC-1", Type: "incident",
		Data: map[string]any{"severity": "sev2"}, Content: "moved again upstream"}
	movedEncoded, err := syncengine.Encode(movedAgain)
	require.NoError(t, err)
	sc.Seed("acme/runbooks", "incidents/INC-1.md", "main", movedEncoded)

	_, currentHash, err := sc.GetContent(ctx, "acme/runbooks", "incidents/INC-1.md", "main")
	require.NoError(t, err)
	require.NotEqual(t, conflict.ObservedHash, currentHash)

	require.NoError(t, engine.Resolve(ctx, conflict.ID, api.StrategyOurs, nil))

	resolved, err := records.GetConflict(ctx, conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, api.ConflictResolved, resolved.Status)

	content, _, err := sc.GetContent(ctx, "acme/runbooks", "incidents/INC-1.md", "main")
	require.NoError(t, err)
	assert.Contains(t, content, "locally edited")
}

// setupConflict builds a record with an open conflict (local vs remote
// divergence), the shared starting point for the resolution tests.
func setupConflict(t *testing.T) (*syncengine.Engine, *recordstore.MemoryStore, *sourcecontrol.FakeClient) {
	t.Helper()
	ctx := context.Background()
	engine, records, sc := newTestEngine()
	rec := baseRecord()
	require.NoError(t, records.UpsertRecord(ctx, rec))
	require.NoError(t, engine.SyncOut(ctx, rec))

	rec, err := records.GetRecord(ctx, rec.Namespace, rec.ID)
	require.NoError(t, err)
	rec.Content = "locally edited"
	rec.SyncStatus = api.SyncDirty
	require.NoError(t, records.UpsertRecord(ctx, rec))

	remote := &api.Record{Namespace: rec.Namespace, ID: rec.ID, Type: rec.Type,
		Data: rec.Data, Content: "remotely edited"}
	remoteEncoded, err := syncengine.Encode(remote)
	require.NoError(t, err)
	sc.Seed(rec.Repository, rec.Path, rec.Branch, remoteEncoded)

	require.NoError(t, engine.SyncIn(ctx, rec.Repository, rec.Path, rec.Branch))
	return engine, records, sc
}
