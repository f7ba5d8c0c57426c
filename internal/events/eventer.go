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

// Package events wraps a watermill router so the dispatcher can publish
// retry messages and consume them without caring which driver backs the
// queue.
package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	watermillsql "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/alexdrl/zerowater"
	promgo "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/stacklok/hookrelay/internal/config"
)

// Handler is the signature the router invokes for each message on a topic.
type Handler = message.NoPublishHandlerFunc

// Registrar lets a component register itself to consume a topic without
// depending on the watermill router directly.
type Registrar interface {
	Register(topic string, handler Handler, mdw ...message.HandlerMiddleware)
}

type driverCloser func()

// Eventer owns the watermill router plus its publisher/subscriber pair.
type Eventer struct {
	router     *message.Router
	publisher  message.Publisher
	subscriber message.Subscriber
	closer     driverCloser
}

var _ Registrar = (*Eventer)(nil)
var _ message.Publisher = (*Eventer)(nil)

// Setup wires a watermill router around the driver selected in cfg.
func Setup(ctx context.Context, cfg *config.EventConfig) (*Eventer, error) {
	if cfg == nil {
		return nil, errors.New("event config is nil")
	}

	l := zerowater.NewZerologLoggerAdapter(
		zerolog.Ctx(ctx).With().Str("component", "watermill").Logger())

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.RouterCloseTimeout,
	}, l)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	metricsBuilder := metrics.NewPrometheusMetricsBuilder(promgo.DefaultRegisterer, metricsNamespace, metricsSubsystem)
	metricsBuilder.AddPrometheusRouterMetrics(router)

	router.AddMiddleware(middleware.CorrelationID)

	pub, sub, closer, err := instantiateDriver(ctx, cfg.Driver, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiating driver %q: %w", cfg.Driver, err)
	}

	pubWithMetrics, err := metricsBuilder.DecoratePublisher(pub)
	if err != nil {
		return nil, fmt.Errorf("decorating publisher: %w", err)
	}
	subWithMetrics, err := metricsBuilder.DecorateSubscriber(sub)
	if err != nil {
		return nil, fmt.Errorf("decorating subscriber: %w", err)
	}

	return &Eventer{
		router:     router,
		publisher:  pubWithMetrics,
		subscriber: subWithMetrics,
		closer: func() {
			_ = pubWithMetrics.Close()
			_ = subWithMetrics.Close()
			closer()
		},
	}, nil
}

func instantiateDriver(
	ctx context.Context,
	driver string,
	cfg *config.EventConfig,
) (message.Publisher, message.Subscriber, driverCloser, error) {
	switch driver {
	case GoChannelDriver:
		return buildGoChannelDriver(cfg)
	case SQLDriver:
		return buildPostgreSQLDriver(ctx, cfg)
	default:
		return nil, nil, nil, fmt.Errorf("unknown event driver %q", driver)
	}
}

func buildGoChannelDriver(cfg *config.EventConfig) (message.Publisher, message.Subscriber, driverCloser, error) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.GoChannel.BufferSize,
		Persistent:          cfg.GoChannel.PersistEvents,
	}, nil)
	return pubsub, pubsub, func() {}, nil
}

func buildPostgreSQLDriver(ctx context.Context, cfg *config.EventConfig) (message.Publisher, message.Subscriber, driverCloser, error) {
	db, err := cfg.SQLPubSub.Connection.GetDBConnection(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to retry-queue database: %w", err)
	}

	publisher, err := watermillsql.NewPublisher(
		db,
		watermillsql.PublisherConfig{SchemaAdapter: watermillsql.DefaultPostgreSQLSchema{}, AutoInitializeSchema: true},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating sql publisher: %w", err)
	}

	subscriber, err := watermillsql.NewSubscriber(
		db,
		watermillsql.SubscriberConfig{
			SchemaAdapter:    watermillsql.DefaultPostgreSQLSchema{},
			OffsetsAdapter:   watermillsql.DefaultPostgreSQLOffsetsAdapter{},
			InitializeSchema: true,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating sql subscriber: %w", err)
	}

	return publisher, subscriber, func() {
		if err := db.Close(); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("error closing retry-queue database connection")
		}
	}, nil
}

// Close tears down the router and the underlying driver.
func (e *Eventer) Close() error {
	e.closer()
	return e.router.Close()
}

// Run blocks until the router is closed or ctx is cancelled.
func (e *Eventer) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

// Running returns a channel that closes once the router has started.
func (e *Eventer) Running() chan struct{} {
	return e.router.Running()
}

// Publish implements message.Publisher, stamping a retry-count of zero on
// any message that doesn't already carry one.
func (e *Eventer) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if msg.Metadata.Get(MetadataRetryCountKey) == "" {
			msg.Metadata.Set(MetadataRetryCountKey, "0")
		}
	}
	return e.publisher.Publish(topic, messages...)
}

// Register subscribes handler to topic. Messages whose retry count has
// reached the router-level ceiling are routed to the dead-letter topic
// instead of being handed to handler again, protecting against a handler
// that always panics instead of returning an error.
func (e *Eventer) Register(topic string, handler Handler, mdw ...message.HandlerMiddleware) {
	funcName := fmt.Sprintf("handler-%s", topic)
	h := e.router.AddNoPublisherHandler(funcName, topic, e.subscriber, func(msg *message.Message) error {
		count, err := strconv.Atoi(msg.Metadata.Get(MetadataRetryCountKey))
		if err != nil {
			count = 0
		}

		if count >= maxRouterRetries {
			e.router.Logger().Info("router retry ceiling reached, routing to dead letter", watermill.LogFields{
				"message_uuid": msg.UUID,
				"topic":        topic,
			})
			return e.publisher.Publish(DeadLetterTopic, msg)
		}

		msg.Metadata.Set(MetadataRetryCountKey, strconv.Itoa(count+1))

		if err := handler(msg); err != nil {
			e.router.Logger().Error("handler returned error", err, watermill.LogFields{
				"message_uuid": msg.UUID,
				"topic":        topic,
			})
			return err
		}
		return nil
	})

	for _, m := range mdw {
		h.AddMiddleware(m)
	}
}

// PublishDelayed schedules msg to be published to topic after delay,
// without blocking the caller. Used by the dispatcher to realize a
// handler's backoff delay between retry attempts.
func (e *Eventer) PublishDelayed(ctx context.Context, topic string, msg *message.Message, delay time.Duration) {
	go publishDelayed(ctx, e.publisher, topic, msg, delay)
}

// publishDelayed waits delay before publishing, honoring ctx cancellation.
// It backs PublishDelayed.
func publishDelayed(ctx context.Context, pub message.Publisher, topic string, msg *message.Message, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		if err := pub.Publish(topic, msg); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("topic", topic).Msg("failed to publish delayed retry message")
		}
	}
}
