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

package eventstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/hookrelay/internal/eventstore"
	"github.com/stacklok/hookrelay/pkg/api"
)

func TestMemoryStore_InsertAndIdempotency(t *testing.T) {
	ctx := context.Background()
	s := eventstore.NewMemoryStore()

	ev := &api.WebhookEvent{
		Provider:  api.ProviderPayments,
		EventID:   "evt_1",
		EventType: "charge.succeeded",
		Payload:   []byte(`{}`),
		Signature: "sig",
	}

	require.NoError(t, s.Insert(ctx, ev))
	assert.NotEmpty(t, ev.ID)

	exists, err := s.Exists(ctx, api.ProviderPayments, "evt_1")
	require.NoError(t, err)
	assert.True(t, exists)

	err = s.Insert(ctx, &api.WebhookEvent{
		Provider: api.ProviderPayments, EventID: "evt_1", Payload: []byte(`{}`),
	})
	assert.ErrorIs(t, err, eventstore.ErrDuplicate)
}

func TestMemoryStore_MarkProcessedAndFailed(t *testing.T) {
	ctx := context.Background()
	s := eventstore.NewMemoryStore()

	ev := &api.WebhookEvent{Provider: api.ProviderIdentity, EventID: "evt_2", Payload: []byte(`{}`)}
	require.NoError(t, s.Insert(ctx, ev))

	require.NoError(t, s.MarkProcessed(ctx, ev.ID))
	got, err := s.Get(ctx, api.ProviderIdentity, "evt_2")
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.NotNil(t, got.ProcessedAt)

	require.NoError(t, s.MarkFailed(ctx, ev.ID, "handler exploded"))
	got, err = s.Get(ctx, api.ProviderIdentity, "evt_2")
	require.NoError(t, err)
	assert.False(t, got.Processed)
	require.NotNil(t, got.Error)
	assert.Equal(t, "handler exploded", *got.Error)
}

func TestMemoryStore_GetMissingReturnsNotFound(t *testing.T) {
	s := eventstore.NewMemoryStore()
	_, err := s.Get(context.Background(), api.ProviderEmail, "nope")
	assert.ErrorIs(t, err, eventstore.ErrNotFound)
}

func TestMemoryStore_ListFiltersByProviderAndProcessed(t *testing.T) {
	ctx := context.Background()
	s := eventstore.NewMemoryStore()

	paid := &api.WebhookEvent{Provider: api.ProviderPayments, EventID: "p1", Payload: []byte(`{}`)}
	identity := &api.WebhookEvent{Provider: api.ProviderIdentity, EventID: "i1", Payload: []byte(`{}`)}
	require.NoError(t, s.Insert(ctx, paid))
	require.NoError(t, s.Insert(ctx, identity))
	require.NoError(t, s.MarkProcessed(ctx, paid.ID))

	onlyPayments, err := s.List(ctx, eventstore.ListFilter{Provider: api.ProviderPayments})
	require.NoError(t, err)
	require.Len(t, onlyPayments, 1)
	assert.Equal(t, "p1", onlyPayments[0].EventID)

	unprocessed, err := s.List(ctx, eventstore.ListFilter{UnprocessedOnly: true})
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, "i1", unprocessed[0].EventID)
}
