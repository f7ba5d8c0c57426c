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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stacklok/hookrelay/internal/dispatcher"
	"github.com/stacklok/hookrelay/internal/syncengine"
	"github.com/stacklok/hookrelay/pkg/api"
)

// registerHandlers wires the business-logic handlers this deployment cares
// about into table. The source-control push handler is the one path that
// touches the sync engine; every other registration here is a placeholder
// a real deployment would replace with its own side effects (provisioning,
// entitlement updates, welcome emails, ...) -- ingestion, verification,
// idempotency and retry all work identically regardless of what a handler
// actually does with the envelope it's given.
func registerHandlers(table *dispatcher.Table, engine *syncengine.Engine) {
	table.Register(api.ProviderSourceControl, "push", pushHandler(engine))
	table.Register(api.ProviderPayments, "*", logOnlyHandler("payments"))
	table.Register(api.ProviderIdentity, "*", logOnlyHandler("identity"))
	table.Register(api.ProviderEmail, "*", logOnlyHandler("email"))
}

// githubPushPayload is the subset of a GitHub push webhook body this
// service needs: which repository, which branch, and which files changed.
type githubPushPayload struct {
	Ref        string `json:"ref"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Commits []struct {
		Added    []string `json:"added"`
		Removed  []string `json:"removed"`
		Modified []string `json:"modified"`
	} `json:"commits"`
}

func pushHandler(engine *syncengine.Engine) dispatcher.HandlerFunc {
	return func(ctx context.Context, env api.Envelope) (any, error) {
		var payload githubPushPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decoding push payload: %w", err)
		}

		branch := strings.TrimPrefix(payload.Ref, "refs/heads/")
		paths := changedPaths(payload)
		if len(paths) == 0 {
			zerolog.Ctx(ctx).Debug().Str("repository", payload.Repository.FullName).Msg("push touched no files")
			return map[string]any{"synced_paths": []string{}}, nil
		}

		for _, path := range paths {
			if err := engine.SyncIn(ctx, payload.Repository.FullName, path, branch); err != nil {
				return nil, fmt.Errorf("syncing %s/%s@%s: %w", payload.Repository.FullName, path, branch, err)
			}
		}
		return map[string]any{"synced_paths": paths}, nil
	}
}

func changedPaths(payload githubPushPayload) []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, commit := range payload.Commits {
		for _, group := range [][]string{commit.Added, commit.Modified, commit.Removed} {
			for _, path := range group {
				if _, ok := seen[path]; ok {
					continue
				}
				seen[path] = struct{}{}
				paths = append(paths, path)
			}
		}
	}
	return paths
}

func logOnlyHandler(provider string) dispatcher.HandlerFunc {
	return func(ctx context.Context, env api.Envelope) (any, error) {
		zerolog.Ctx(ctx).Info().
			Str("provider", provider).
			Str("event_type", env.EventType).
			Str("event_id", env.EventID).
			Msg("handled webhook event")
		return nil, nil
	}
}
