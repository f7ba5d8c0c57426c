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

package config

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/lib/pq" // registers the "postgres" sql.DB driver
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DatabaseConfig is the configuration for the Postgres-backed event store
// and record store connections.
type DatabaseConfig struct {
	Host     string `mapstructure:"dbhost" default:"localhost"`
	Port     int    `mapstructure:"dbport" default:"5432"`
	User     string `mapstructure:"dbuser" default:"postgres"`
	Password string `mapstructure:"dbpass" default:"postgres"`
	Name     string `mapstructure:"dbname" default:"hookrelay"`
	SSLMode  string `mapstructure:"sslmode" default:"disable"`
}

// GetDBURI returns the database connection URI.
func (c *DatabaseConfig) GetDBURI() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, url.QueryEscape(c.Password), c.Host, c.Port, c.Name, c.SSLMode)
}

// GetDBConnection opens and pings a connection to the database.
func (c *DatabaseConfig) GetDBConnection(ctx context.Context) (*sql.DB, error) {
	uri := c.GetDBURI()
	conn, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		//nolint:errcheck // best effort close on a failed ping
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	zerolog.Ctx(ctx).Info().Msg("connected to database")
	return conn, nil
}

// RegisterDatabaseFlags registers the flags for the database configuration.
func RegisterDatabaseFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := BindConfigFlag(v, flags, "database.dbhost", "db-host", "localhost",
		"Database host", flags.String); err != nil {
		return err
	}
	if err := BindConfigFlag(v, flags, "database.dbport", "db-port", 5432,
		"Database port", flags.Int); err != nil {
		return err
	}
	if err := BindConfigFlag(v, flags, "database.dbuser", "db-user", "postgres",
		"Database user", flags.String); err != nil {
		return err
	}
	if err := BindConfigFlag(v, flags, "database.dbpass", "db-pass", "postgres",
		"Database password", flags.String); err != nil {
		return err
	}
	if err := BindConfigFlag(v, flags, "database.dbname", "db-name", "hookrelay",
		"Database name", flags.String); err != nil {
		return err
	}
	return BindConfigFlag(v, flags, "database.sslmode", "db-sslmode", "disable",
		"Database sslmode", flags.String)
}
