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
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/stacklok/hookrelay/internal/config"
)

const readHeaderTimeout = 5 * time.Second

// Serve runs rt's HTTP server until ctx is cancelled, then drains
// in-flight webhook POSTs (rejecting new ones with 503/Retry-After) before
// giving ShutdownGraceSeconds for active requests to complete.
func Serve(ctx context.Context, cfg config.HTTPServerConfig, rt *Router) error {
	server := &http.Server{
		Addr:              cfg.GetAddress(),
		Handler:           rt,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zerolog.Ctx(ctx).Info().Str("address", cfg.GetAddress()).Msg("starting ingress HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ingress server failed: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	rt.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGraceSeconds)*time.Second)
	defer cancel()

	zerolog.Ctx(ctx).Info().Msg("draining ingress HTTP server")
	return server.Shutdown(shutdownCtx)
}
