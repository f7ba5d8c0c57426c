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

package dispatcher

import (
	"context"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/stacklok/hookrelay/internal/config"
	"github.com/stacklok/hookrelay/internal/events"
	"github.com/stacklok/hookrelay/internal/eventstore"
	"github.com/stacklok/hookrelay/pkg/api"
)

// Dispatcher looks up the typed handler for a verified envelope, runs it,
// and on failure reschedules it onto the retry queue with exponential
// backoff until the configured attempt ceiling is reached.
type Dispatcher struct {
	store   eventstore.Store
	table   *Table
	eventer *events.Eventer
	cfg     config.DispatchConfig
}

// NewDispatcher wires a routing table to a persistence and retry backend.
func NewDispatcher(store eventstore.Store, table *Table, eventer *events.Eventer, cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{store: store, table: table, eventer: eventer, cfg: cfg}
}

// Dispatch makes the first, synchronous attempt at handling ev and returns
// the handler's result. Ingress calls this right after persisting the
// event: on a handler error, Dispatch still schedules a retry as a side
// effect, but it also propagates the error to its caller so the caller can
// report the failure (a 500) instead of acknowledging a delivery that
// wasn't actually handled.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *api.WebhookEvent) (any, error) {
	env := envelopeFromEvent(ev)

	handler, ok := d.table.Lookup(ev.Provider, ev.EventType)
	if !ok {
		zerolog.Ctx(ctx).Debug().
			Str("provider", string(ev.Provider)).
			Str("event_type", ev.EventType).
			Msg("no handler registered for event type, marking processed")
		return nil, d.store.MarkProcessed(ctx, ev.ID)
	}

	result, err := d.invoke(ctx, handler, env)
	if err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("provider", string(ev.Provider)).
			Str("event_id", ev.EventID).
			Msg("handler failed, scheduling retry")
		d.scheduleRetry(ctx, ev, 1)
		return nil, err
	}

	if err := d.store.MarkProcessed(ctx, ev.ID); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Dispatcher) invoke(ctx context.Context, handler HandlerFunc, env api.Envelope) (any, error) {
	timeout := time.Duration(d.cfg.HandlerTimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return handler(ctx, env)
}

// RegisterRetryConsumer subscribes the dispatcher to the retry topic, so
// scheduled retries feed back through the same attempt/backoff logic as
// the first attempt.
func (d *Dispatcher) RegisterRetryConsumer() {
	d.eventer.Register(events.RetryTopic, d.handleRetry)
}

func (d *Dispatcher) handleRetry(msg *message.Message) error {
	ctx := msg.Context()
	provider := api.Provider(msg.Metadata.Get(events.MetadataProvider))
	eventID := msg.Metadata.Get(events.MetadataEventID)
	attempt, err := strconv.Atoi(msg.Metadata.Get(events.MetadataAttempt))
	if err != nil {
		attempt = 1
	}

	ev, err := d.store.Get(ctx, provider, eventID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("provider", string(provider)).Str("event_id", eventID).
			Msg("retry consumer could not load event, dropping")
		return nil
	}

	handler, ok := d.table.Lookup(provider, ev.EventType)
	if !ok {
		return d.store.MarkProcessed(ctx, ev.ID)
	}

	if _, err := d.invoke(ctx, handler, envelopeFromEvent(ev)); err != nil {
		if attempt >= d.cfg.MaxRetryAttempts {
			zerolog.Ctx(ctx).Error().Err(err).
				Str("provider", string(provider)).Str("event_id", eventID).Int("attempt", attempt).
				Msg("retry attempts exhausted, dead-lettering")
			errMsg := err.Error()
			if markErr := d.store.MarkFailed(ctx, ev.ID, errMsg); markErr != nil {
				return markErr
			}
			return d.eventer.Publish(events.DeadLetterTopic, message.NewMessage(watermill.NewUUID(), msg.Payload))
		}
		d.scheduleRetry(ctx, ev, attempt+1)
		return nil
	}

	return d.store.MarkProcessed(ctx, ev.ID)
}

func (d *Dispatcher) scheduleRetry(ctx context.Context, ev *api.WebhookEvent, nextAttempt int) {
	msg := message.NewMessage(watermill.NewUUID(), ev.Payload)
	msg.Metadata.Set(events.MetadataProvider, string(ev.Provider))
	msg.Metadata.Set(events.MetadataEventID, ev.EventID)
	msg.Metadata.Set(events.MetadataAttempt, strconv.Itoa(nextAttempt))

	delay := delayForAttempt(d.cfg, nextAttempt)
	// The retry outlives the request or message that scheduled it, so its
	// timer is detached from ctx's cancellation.
	d.eventer.PublishDelayed(context.WithoutCancel(ctx), events.RetryTopic, msg, delay)
}

func envelopeFromEvent(ev *api.WebhookEvent) api.Envelope {
	return api.Envelope{
		Provider:  ev.Provider,
		EventID:   ev.EventID,
		EventType: ev.EventType,
		Payload:   ev.Payload,
		Signature: ev.Signature,
	}
}
