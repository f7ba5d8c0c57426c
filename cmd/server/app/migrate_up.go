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
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/stacklok/hookrelay/internal/db"
)

var migrateUpCmd = &cobra.Command{
	Use:          "up",
	Short:        "Migrate the database to the latest schema version",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := readConfig()
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		m, err := db.NewFromConnectionString(cfg.Database.GetDBURI())
		if err != nil {
			return fmt.Errorf("creating migrator: %w", err)
		}

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrating up: %w", err)
		}

		cmd.Println("database schema is up to date")
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
}
