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

// Package ingress is the HTTP front door that reads a provider's raw
// request body, hands it to the matching Verifier, and on success pushes
// the result through the event store and dispatcher.
package ingress

import (
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/stacklok/hookrelay/internal/dispatcher"
	"github.com/stacklok/hookrelay/internal/eventstore"
	"github.com/stacklok/hookrelay/internal/syncengine"
	"github.com/stacklok/hookrelay/internal/verifier"
	"github.com/stacklok/hookrelay/pkg/api"
)

// maxBodyBytes bounds how much of a request body ingress will read before
// giving up, independent of whatever limit the provider itself applies.
const maxBodyBytes = 5 << 20 // 5 MiB

// providerPaths maps the URL path segment each provider's webhook arrives
// on to its canonical Provider value.
var providerPaths = map[string]api.Provider{
	"stripe": api.ProviderPayments,
	"workos": api.ProviderIdentity,
	"github": api.ProviderSourceControl,
	"resend": api.ProviderEmail,
}

// Router is the ingress HTTP handler: one POST endpoint per provider plus
// the read-only/administrative event endpoints.
type Router struct {
	mux        *http.ServeMux
	verifiers  map[api.Provider]verifier.Verifier
	store      eventstore.Store
	dispatcher *dispatcher.Dispatcher
	engine     *syncengine.Engine
	draining   atomic.Bool
}

// NewRouter builds the ingress mux. Every provider path is registered; a
// provider with no entry in verifiers (no configured HMAC key, see
// config.WebhookConfig) answers 404 on its path. engine backs
// the record and conflict management endpoints: the external upsert that
// triggers sync-out and the manual-resolution endpoint for conflicts.
func NewRouter(verifiers []verifier.Verifier, store eventstore.Store, disp *dispatcher.Dispatcher, engine *syncengine.Engine) *Router {
	rt := &Router{
		mux:        http.NewServeMux(),
		verifiers:  make(map[api.Provider]verifier.Verifier, len(verifiers)),
		store:      store,
		dispatcher: disp,
		engine:     engine,
	}
	for _, v := range verifiers {
		rt.verifiers[v.Provider()] = v
	}
	rt.routes()
	return rt
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// Drain marks the router as shutting down: subsequent webhook POSTs are
// rejected with 503 and a Retry-After header instead of being accepted and
// then dropped when the process exits.
func (rt *Router) Drain() {
	rt.draining.Store(true)
}

func (rt *Router) routes() {
	for path, provider := range providerPaths {
		rt.mux.HandleFunc("POST /"+path, rt.handleWebhook(provider))
	}
	rt.mux.HandleFunc("GET /api/events", rt.handleListEvents)
	rt.mux.HandleFunc("GET /api/events/{provider}/{eventId}", rt.handleGetEvent)
	rt.mux.HandleFunc("POST /api/events/{provider}/{eventId}/retry", rt.handleRetryEvent)
	rt.mux.HandleFunc("GET /api/records", rt.handleListRecords)
	rt.mux.HandleFunc("PUT /api/records/{namespace}/{id}", rt.handleUpsertRecord)
	rt.mux.HandleFunc("GET /api/records/{namespace}/{id}", rt.handleGetRecord)
	rt.mux.HandleFunc("GET /api/conflicts", rt.handleListConflicts)
	rt.mux.HandleFunc("POST /api/conflicts/{conflictId}/resolve", rt.handleResolveConflict)
	rt.mux.HandleFunc("GET /healthz", rt.handleHealthz)
}

func (rt *Router) handleWebhook(provider api.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rt.draining.Load() {
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, errors.New("server is shutting down"))
			return
		}

		log := zerolog.Ctx(r.Context()).With().Str("provider", string(provider)).Logger()

		v, ok := rt.verifiers[provider]
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("provider not configured"))
			return
		}

		for _, h := range v.RequiredHeaders() {
			if r.Header.Get(h) == "" {
				log.Info().Str("header", h).Msg("rejecting webhook: missing required header")
				writeError(w, http.StatusUnauthorized, errors.New("missing required header "+h))
				return
			}
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			log.Warn().Err(err).Msg("failed to read webhook body")
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if len(body) > maxBodyBytes {
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return
		}

		env, err := v.Verify(body, r.Header)
		if err != nil {
			rt.writeVerifyError(w, &log, err)
			return
		}

		rt.ingest(w, r, &log, env)
	}
}

func (rt *Router) writeVerifyError(w http.ResponseWriter, log *zerolog.Logger, err error) {
	var verr *verifier.Error
	if !errors.As(err, &verr) {
		log.Error().Err(err).Msg("unexpected verifier error")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	switch verr.Kind {
	case verifier.ErrInvalidSignature, verifier.ErrReplayTooOld:
		log.Info().Str("reason", string(verr.Kind)).Msg("rejecting webhook: authentication failed")
		writeError(w, http.StatusUnauthorized, verr)
	case verifier.ErrMalformedHeader, verifier.ErrMalformedBody:
		log.Info().Str("reason", string(verr.Kind)).Msg("rejecting webhook: malformed request")
		writeError(w, http.StatusBadRequest, verr)
	default:
		writeError(w, http.StatusBadRequest, verr)
	}
}

// ingest persists a verified envelope idempotently and hands it to the
// dispatcher. A duplicate delivery still ends in a 200 with
// {already_processed: true}: the provider should not retry a delivery
// hookrelay already owns. A handler failure is a 500 with {error: ...};
// the event is still queued for retry behind the scenes.
func (rt *Router) ingest(w http.ResponseWriter, r *http.Request, log *zerolog.Logger, env api.Envelope) {
	ctx := r.Context()

	exists, err := rt.store.Exists(ctx, env.Provider, env.EventID)
	if err != nil {
		log.Error().Err(err).Msg("checking event idempotency")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if exists {
		log.Debug().Str("event_id", env.EventID).Msg("duplicate delivery, acknowledging without reprocessing")
		writeJSON(w, http.StatusOK, map[string]any{"already_processed": true})
		return
	}

	ev := &api.WebhookEvent{
		Provider:  env.Provider,
		EventID:   env.EventID,
		EventType: env.EventType,
		Payload:   env.Payload,
		Signature: env.Signature,
	}
	if err := rt.store.Insert(ctx, ev); err != nil {
		if errors.Is(err, eventstore.ErrDuplicate) {
			writeJSON(w, http.StatusOK, map[string]any{"already_processed": true})
			return
		}
		log.Error().Err(err).Msg("persisting webhook event")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	result, err := rt.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		log.Error().Err(err).Str("event_id", ev.EventID).Msg("handler failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody(result))
}

// successBody builds the `{success: true, ...handlerResult}` response: a
// map-shaped result is merged into the top-level object, anything else
// (including no result at all) is carried under a "result" key.
func successBody(result any) map[string]any {
	body := map[string]any{"success": true}
	switch r := result.(type) {
	case nil:
	case map[string]any:
		for k, v := range r {
			body[k] = v
		}
	default:
		body["result"] = r
	}
	return body
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func (rt *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if err := rt.store.CheckHealth(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
