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

// Package app provides the cli subcommands for running the hookrelay server.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/hookrelay/internal/config"
)

var cfgFile string

// RootCmd is the base command when hookrelay-server is called without a
// subcommand.
var RootCmd = &cobra.Command{
	Use:   "hookrelay-server",
	Short: "hookrelay webhook ingestion and sync server",
	Long:  `hookrelay ingests provider webhooks, dispatches them to handlers, and keeps tracked records synchronized with a source-control mirror.`,
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	v := viper.GetViper()
	if err := config.RegisterDatabaseFlags(v, RootCmd.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, "registering database flags:", err)
		os.Exit(1)
	}
	if err := config.RegisterHTTPServerFlags(v, RootCmd.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, "registering http server flags:", err)
		os.Exit(1)
	}
}

func initConfig() {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	config.SetViperDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintln(os.Stderr, "error reading config file:", err)
		}
	}
}

func readConfig() (*config.Config, error) {
	return config.ReadConfigFromViper[config.Config](viper.GetViper())
}
