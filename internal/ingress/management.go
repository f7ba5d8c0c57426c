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

	"github.com/stacklok/hookrelay/internal/eventstore"
	"github.com/stacklok/hookrelay/pkg/api"
)

func (rt *Router) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := eventstore.ListFilter{
		Provider: api.Provider(q.Get("provider")),
	}
	switch q.Get("status") {
	case "processed":
		filter.ProcessedOnly = true
	case "unprocessed":
		filter.UnprocessedOnly = true
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = offset
	}

	events, err := rt.store.List(r.Context(), filter)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("listing webhook events")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (rt *Router) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	provider := api.Provider(r.PathValue("provider"))
	eventID := r.PathValue("eventId")

	ev, err := rt.store.Get(r.Context(), provider, eventID)
	if errors.Is(err, eventstore.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("getting webhook event")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleRetryEvent lets an operator force an immediate re-dispatch of an
// event that landed in the failed state, without waiting for the next
// scheduled backoff retry.
func (rt *Router) handleRetryEvent(w http.ResponseWriter, r *http.Request) {
	provider := api.Provider(r.PathValue("provider"))
	eventID := r.PathValue("eventId")

	ev, err := rt.store.Get(r.Context(), provider, eventID)
	if errors.Is(err, eventstore.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("getting webhook event for manual retry")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	result, err := rt.dispatcher.Dispatch(r.Context(), ev)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("manual retry dispatch failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, successBody(result))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
