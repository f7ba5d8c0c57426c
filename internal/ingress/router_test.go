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

package ingress_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/hookrelay/internal/config"
	"github.com/stacklok/hookrelay/internal/dispatcher"
	"github.com/stacklok/hookrelay/internal/events"
	"github.com/stacklok/hookrelay/internal/eventstore"
	"github.com/stacklok/hookrelay/internal/ingress"
	"github.com/stacklok/hookrelay/internal/recordstore"
	"github.com/stacklok/hookrelay/internal/sourcecontrol"
	"github.com/stacklok/hookrelay/internal/syncengine"
	"github.com/stacklok/hookrelay/internal/verifier"
	"github.com/stacklok/hookrelay/pkg/api"
)

const paymentsKey = "test-payments-secret"

// events.Setup registers its router metrics against the process-wide
// Prometheus registry, so building more than one Eventer per test binary
// panics on duplicate registration. Every test in this file shares the
// same one; its router is never started, so there's nothing to tear down.
var (
	sharedEventerOnce sync.Once
	sharedEventer     *events.Eventer
)

func testEventer(t *testing.T) *events.Eventer {
	t.Helper()
	sharedEventerOnce.Do(func() {
		ev, err := events.Setup(context.Background(), &config.EventConfig{
			Driver:             events.GoChannelDriver,
			RouterCloseTimeout: time.Second,
			GoChannel:          config.GoChannelEventConfig{BufferSize: 10},
		})
		require.NoError(t, err)
		sharedEventer = ev
	})
	return sharedEventer
}

func newTestRouter(t *testing.T) (*ingress.Router, *eventstore.MemoryStore) {
	t.Helper()
	rt, store, _, _ := newTestRouterWithRecords(t)
	return rt, store
}

func newTestRouterWithRecords(t *testing.T) (*ingress.Router, *eventstore.MemoryStore, *recordstore.MemoryStore, *sourcecontrol.FakeClient) {
	t.Helper()
	return newTestRouterWithTable(t, dispatcher.NewTable())
}

func newTestRouterWithTable(t *testing.T, table *dispatcher.Table) (*ingress.Router, *eventstore.MemoryStore, *recordstore.MemoryStore, *sourcecontrol.FakeClient) {
	t.Helper()

	store := eventstore.NewMemoryStore()
	eventer := testEventer(t)

	disp := dispatcher.NewDispatcher(store, table, eventer, config.DispatchConfig{
		HandlerTimeoutMs: 1000,
		MaxRetryAttempts: 3,
		RetryBaseDelayMs: 10,
		RetryMaxDelayMs:  100,
	})

	records := recordstore.NewMemoryStore()
	sc := sourcecontrol.NewFakeClient()
	engine := syncengine.NewEngine(records, sc)

	v := verifier.NewPaymentsVerifier([]byte(paymentsKey), 5*time.Minute)
	rt := ingress.NewRouter([]verifier.Verifier{v}, store, disp, engine)
	return rt, store, records, sc
}

func signedPaymentsRequest(body string) (string, string) {
	ts := time.Now().Unix()
	mac := fmt.Sprintf("%d.%s", ts, body)
	h := hmacHex(paymentsKey, mac)
	return fmt.Sprintf("t=%d,v1=%s", ts, h), body
}

func hmacHex(key, msg string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandleWebhook_ValidPaymentsEventAccepted(t *testing.T) {
	rt, store := newTestRouter(t)

	body := `{"id":"evt_1","type":"charge.succeeded"}`
	sigHeader, _ := signedPaymentsRequest(body)

	req := httptest.NewRequest("POST", "/stripe", strings.NewReader(body))
	req.Header.Set("stripe-signature", sigHeader)
	rec := httptest.NewRecorder()

	rt.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	exists, err := store.Exists(context.Background(), api.ProviderPayments, "evt_1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHandleWebhook_HandlerFailureReturns500AndStillSchedulesRetry(t *testing.T) {
	table := dispatcher.NewTable()
	table.Register(api.ProviderPayments, "charge.succeeded",
		func(context.Context, api.Envelope) (any, error) { return nil, errors.New("downstream unavailable") })
	rt, store, _, _ := newTestRouterWithTable(t, table)

	body := `{"id":"evt_fail","type":"charge.succeeded"}`
	sigHeader, _ := signedPaymentsRequest(body)

	req := httptest.NewRequest("POST", "/stripe", strings.NewReader(body))
	req.Header.Set("stripe-signature", sigHeader)
	rec := httptest.NewRecorder()

	rt.ServeHTTP(rec, req)
	assert.Equal(t, 500, rec.Code)
	assert.JSONEq(t, `{"error":"downstream unavailable"}`, rec.Body.String())

	ev, err := store.Get(context.Background(), api.ProviderPayments, "evt_fail")
	require.NoError(t, err)
	assert.False(t, ev.Processed, "a failed handler must not mark the event processed")
}

func TestHandleWebhook_InvalidSignatureRejected(t *testing.T) {
	rt, _ := newTestRouter(t)

	body := `{"id":"evt_2","type":"charge.succeeded"}`
	req := httptest.NewRequest("POST", "/stripe", strings.NewReader(body))
	req.Header.Set("stripe-signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()

	rt.ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)
}

func TestHandleWebhook_DuplicateDeliveryAcknowledgedWithoutReprocessing(t *testing.T) {
	rt, store := newTestRouter(t)

	body := `{"id":"evt_3","type":"charge.succeeded"}`
	sigHeader, _ := signedPaymentsRequest(body)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/stripe", strings.NewReader(body))
		req.Header.Set("stripe-signature", sigHeader)
		rec := httptest.NewRecorder()
		rt.ServeHTTP(rec, req)
		assert.Equal(t, 200, rec.Code)
		if i == 1 {
			assert.JSONEq(t, `{"already_processed":true}`, rec.Body.String())
		}
	}

	events, err := store.List(context.Background(), eventstore.ListFilter{Provider: api.ProviderPayments})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestHandleWebhook_UnknownProviderPathNotFound(t *testing.T) {
	rt, _ := newTestRouter(t)
	req := httptest.NewRequest("POST", "/workos", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestHandleUpsertRecord_WithSyncLocationSyncsOutImmediately(t *testing.T) {
	rt, _, records, sc := newTestRouterWithRecords(t)

	body := `{"type":"incident","data":{"severity":"sev2"},"content":"first draft",` +
		`"repository":"acme/runbooks","path":"incidents/INC-1.md","branch":"main"}`
	req := httptest.NewRequest("PUT", "/api/records/incidents/INC-1", strings.NewReader(body))
	rec := httptest.NewRecorder()

	rt.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	after, err := records.GetRecord(context.Background(), "incidents", "INC-1")
	require.NoError(t, err)
	assert.Equal(t, api.SyncSynced, after.SyncStatus)
	require.NotNil(t, after.LastSyncedHash)

	content, _, err := sc.GetContent(context.Background(), "acme/runbooks", "incidents/INC-1.md", "main")
	require.NoError(t, err)
	assert.Contains(t, content, "first draft")
}

func TestHandleUpsertRecord_WithoutSyncLocationStaysUnsynced(t *testing.T) {
	rt, _, records, _ := newTestRouterWithRecords(t)

	body := `{"type":"incident","data":{"severity":"sev3"},"content":"draft"}`
	req := httptest.NewRequest("PUT", "/api/records/incidents/INC-2", strings.NewReader(body))
	rec := httptest.NewRecorder()

	rt.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	after, err := records.GetRecord(context.Background(), "incidents", "INC-2")
	require.NoError(t, err)
	assert.Equal(t, api.SyncUnsynced, after.SyncStatus)
}

func TestHandleGetRecord_UnknownRecordNotFound(t *testing.T) {
	rt, _, _, _ := newTestRouterWithRecords(t)
	req := httptest.NewRequest("GET", "/api/records/incidents/missing", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestHandleResolveConflict_OursResolvesPendingConflict(t *testing.T) {
	rt, _, records, sc := newTestRouterWithRecords(t)
	ctx := context.Background()

	rec := &api.Record{
		Namespace: "incidents", ID: "INC-3", Type: "incident",
		Data: map[string]any{"severity": "sev2"}, Content: "first draft",
		Repository: "acme/runbooks", Path: "incidents/INC-3.md", Branch: "main",
	}
	require.NoError(t, records.UpsertRecord(ctx, rec))

	engine := syncengine.NewEngine(records, sc)
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

	conflicts, err := records.ListOpenConflicts(ctx, "incidents")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	body := `{"strategy":"ours"}`
	req := httptest.NewRequest("POST", "/api/conflicts/"+conflicts[0].ID+"/resolve", strings.NewReader(body))
	resp := httptest.NewRecorder()
	rt.ServeHTTP(resp, req)
	assert.Equal(t, 204, resp.Code)

	resolved, err := records.GetConflict(ctx, conflicts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, api.ConflictResolved, resolved.Status)
}
