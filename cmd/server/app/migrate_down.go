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

var migrateDownCmd = &cobra.Command{
	Use:          "down",
	Short:        "Roll back every applied database migration",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		yes, err := cmd.Flags().GetBool("yes")
		if err != nil {
			return fmt.Errorf("reading --yes flag: %w", err)
		}
		if !yes && !confirm(cmd, "this will drop all hookrelay schema objects") {
			return nil
		}

		cfg, err := readConfig()
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		m, err := db.NewFromConnectionString(cfg.Database.GetDBURI())
		if err != nil {
			return fmt.Errorf("creating migrator: %w", err)
		}

		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrating down: %w", err)
		}

		cmd.Println("database schema rolled back")
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().Bool("yes", false, "skip the confirmation prompt")
	migrateCmd.AddCommand(migrateDownCmd)
}
