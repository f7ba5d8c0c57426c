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

package ingress

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/stacklok/hookrelay/internal/recordstore"
	"github.com/stacklok/hookrelay/internal/syncengine"
	"github.com/stacklok/hookrelay/pkg/api"
)

type upsertRecordRequest struct {
	Type       string         `json:"type"`
	Data       map[string]any `json:"data"`
	Content    string         `json:"content"`
	Repository string         `json:"repository"`
	Path       string         `json:"path"`
	Branch     string         `json:"branch"`
}

// handleUpsertRecord is the external upsert: a new record starts unsynced
// and an existing one with a sync location becomes dirty. The caller owns
// the record's data; this only persists it and, if the record has
// somewhere to sync to, runs sync-out, so the returned record is then
// synced or in conflict.
func (rt *Router) handleUpsertRecord(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	id := r.PathValue("id")
	log := zerolog.Ctx(r.Context()).With().Str("namespace", namespace).Str("record_id", id).Logger()

	var req upsertRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	existing, err := rt.engine.Records.GetRecord(r.Context(), namespace, id)
	if err != nil && !errors.Is(err, recordstore.ErrNotFound) {
		log.Error().Err(err).Msg("loading record for upsert")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	rec := &api.Record{
		Namespace: namespace, ID: id, Type: req.Type, Data: req.Data, Content: req.Content,
		Repository: req.Repository, Path: req.Path, Branch: req.Branch,
		SyncStatus: api.SyncUnsynced,
	}
	if existing != nil {
		rec.LastSyncedHash = existing.LastSyncedHash
		rec.LastSyncedAt = existing.LastSyncedAt
		rec.SyncStatus = api.SyncDirty
		if !existing.HasSyncLocation() && !rec.HasSyncLocation() {
			rec.SyncStatus = existing.SyncStatus
		}
	}

	if err := rt.engine.Records.UpsertRecord(r.Context(), rec); err != nil {
		log.Error().Err(err).Msg("upserting record")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if rec.HasSyncLocation() {
		if err := rt.engine.SyncOut(r.Context(), rec); err != nil {
			log.Error().Err(err).Msg("sync-out after upsert failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	current, err := rt.engine.Records.GetRecord(r.Context(), namespace, id)
	if err != nil {
		log.Error().Err(err).Msg("reloading record after upsert")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (rt *Router) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	id := r.PathValue("id")

	rec, err := rt.engine.Records.GetRecord(r.Context(), namespace, id)
	if errors.Is(err, recordstore.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("getting record")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := recordstore.RecordFilter{
		Namespace:  q.Get("namespace"),
		SyncStatus: api.SyncStatus(q.Get("sync_status")),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = offset
	}

	records, err := rt.engine.Records.ListRecords(r.Context(), filter)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("listing records")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (rt *Router) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := rt.engine.Records.ListOpenConflicts(r.Context(), r.URL.Query().Get("namespace"))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("listing open conflicts")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, conflicts)
}

type resolveConflictRequest struct {
	Strategy        api.ResolutionStrategy `json:"strategy"`
	ResolvedContent *string                `json:"resolvedContent,omitempty"`
}

// handleResolveConflict applies a resolution strategy to a pending
// conflict, manually or from an automated policy, by invoking Resolve.
func (rt *Router) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	conflictID := r.PathValue("conflictId")
	log := zerolog.Ctx(r.Context()).With().Str("conflict_id", conflictID).Logger()

	var req resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err := rt.engine.Resolve(r.Context(), conflictID, req.Strategy, req.ResolvedContent)
	switch {
	case errors.Is(err, syncengine.ErrManualContentRequired):
		w.WriteHeader(http.StatusUnprocessableEntity)
	case err != nil:
		log.Error().Err(err).Msg("resolving conflict")
		w.WriteHeader(http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
