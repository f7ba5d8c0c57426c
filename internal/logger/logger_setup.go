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

// Package logger configures the process-wide structured logger.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stacklok/hookrelay/internal/config"
)

// FromConfig configures the global zerolog logger and returns it.
func FromConfig(cfg config.LoggingConfig) zerolog.Logger {
	zlevel, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zlevel)

	// Conform to https://github.com/open-telemetry/oteps/blob/main/text/logs/0097-log-data-model.md#example-log-records
	zerolog.ErrorFieldName = "exception.message"
	zerolog.TimestampFieldName = "Timestamp"
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixNano

	var writers []io.Writer

	if cfg.LogFile != "" {
		path := filepath.Clean(cfg.LogFile)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		// NOTE: we are leaking the open file here, same as upstream.
		if err != nil {
			log.Err(err).Msg("failed to open log file, defaulting to stdout")
		} else {
			writers = append(writers, file)
		}
	}

	if cfg.Format == config.Text {
		writers = append(writers, zerolog.NewConsoleWriter())
	} else {
		writers = append(writers, os.Stdout)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()

	// Use this logger when calling zerolog.Ctx(ctx) on a context with no logger attached.
	zerolog.DefaultContextLogger = &logger
	return logger
}
