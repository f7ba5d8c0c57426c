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

package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/hookrelay/internal/config"
	"github.com/stacklok/hookrelay/internal/dispatcher"
	"github.com/stacklok/hookrelay/internal/eventstore"
	"github.com/stacklok/hookrelay/internal/events"
	"github.com/stacklok/hookrelay/internal/ingress"
	"github.com/stacklok/hookrelay/internal/logger"
	"github.com/stacklok/hookrelay/internal/recordstore"
	"github.com/stacklok/hookrelay/internal/sourcecontrol"
	"github.com/stacklok/hookrelay/internal/syncengine"
	"github.com/stacklok/hookrelay/internal/verifier"
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Start the hookrelay ingress server",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, err := readConfig()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	log := logger.FromConfig(cfg.Logging)
	ctx = log.WithContext(ctx)

	dbConn, closeDB, err := wireUpDB(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB()

	store := eventstore.NewSQLStore(dbConn)
	records := recordstore.NewSQLStore(dbConn)

	scClient, err := sourcecontrol.NewGitHubClient(cfg.SourceControl)
	if err != nil {
		return fmt.Errorf("building source-control client: %w", err)
	}
	engine := syncengine.NewEngine(records, scClient)

	verifiers := buildVerifiers(cfg.Webhook)
	if len(verifiers) == 0 {
		log.Warn().Msg("no webhook HMAC keys configured, all ingress endpoints are disabled")
	}

	table := dispatcher.NewTable()
	registerHandlers(table, engine)

	eventer, err := events.Setup(ctx, &cfg.Events)
	if err != nil {
		return fmt.Errorf("setting up event router: %w", err)
	}
	defer func() {
		if err := eventer.Close(); err != nil {
			log.Error().Err(err).Msg("error closing event router")
		}
	}()

	disp := dispatcher.NewDispatcher(store, table, eventer, cfg.Dispatch)
	disp.RegisterRetryConsumer()

	router := ingress.NewRouter(verifiers, store, disp, engine)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eventer.Run(ctx)
	})
	g.Go(func() error {
		select {
		case <-eventer.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
		log.Info().Str("address", cfg.HTTPServer.GetAddress()).Msg("starting ingress server")
		return ingress.Serve(ctx, cfg.HTTPServer, router)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

func buildVerifiers(cfg config.WebhookConfig) []verifier.Verifier {
	tolerance := time.Duration(cfg.ReplayToleranceMs) * time.Millisecond

	var verifiers []verifier.Verifier
	if cfg.PaymentsHMACKey != "" {
		verifiers = append(verifiers, verifier.NewPaymentsVerifier([]byte(cfg.PaymentsHMACKey), tolerance))
	}
	if cfg.IdentityHMACKey != "" {
		verifiers = append(verifiers, verifier.NewIdentityVerifier([]byte(cfg.IdentityHMACKey), tolerance))
	}
	if cfg.SourceControlHMACKey != "" {
		verifiers = append(verifiers, verifier.NewSourceControlVerifier([]byte(cfg.SourceControlHMACKey)))
	}
	if len(cfg.EmailHMACKeys) > 0 {
		keys := make([][]byte, len(cfg.EmailHMACKeys))
		for i, k := range cfg.EmailHMACKeys {
			keys[i] = []byte(k)
		}
		verifiers = append(verifiers, verifier.NewEmailVerifier(keys, tolerance))
	}
	return verifiers
}
