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
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stacklok/hookrelay/internal/config"
)

// This file contains logic shared between the serve and migrate commands.

// confirm prompts the user before a destructive operation, returning
// whether they agreed to proceed.
func confirm(cmd *cobra.Command, message string) bool {
	cmd.Printf("WARNING: %s. Do you want to continue? (y/n): ", message)
	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		cmd.Printf("error reading response: %v\n", err)
		os.Exit(1)
	}
	if response != "y" {
		cmd.Println("aborted")
		return false
	}
	return true
}

func wireUpDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, func(), error) {
	conn, err := cfg.GetDBConnection(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	closer := func() {
		if err := conn.Close(); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("error closing database connection")
		}
	}
	return conn, closer, nil
}
