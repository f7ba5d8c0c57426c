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

// LogFormat is the format used for log output.
type LogFormat string

const (
	// Text is human-readable console output.
	Text LogFormat = "text"
	// JSON is structured JSON output, suitable for log aggregation.
	JSON LogFormat = "json"
)

// LoggingConfig is the configuration for the structured logger.
type LoggingConfig struct {
	// Level is the minimum log level to emit (debug, info, warn, error).
	Level string `mapstructure:"level" default:"info"`
	// Format is either "text" or "json".
	Format LogFormat `mapstructure:"format" default:"json"`
	// LogFile, if set, additionally writes log lines to this path.
	LogFile string `mapstructure:"log_file"`
}
