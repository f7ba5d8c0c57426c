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
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level process configuration structure.
type Config struct {
	HTTPServer    HTTPServerConfig    `mapstructure:"http_server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Events        EventConfig         `mapstructure:"events"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Dispatch      DispatchConfig      `mapstructure:"dispatch"`
	SourceControl SourceControlConfig `mapstructure:"source_control"`
}

// SetViperDefaults registers every default, struct-literal or otherwise,
// with viper so that "HOOKRELAY_"-prefixed environment variables can
// override any of them.
func SetViperDefaults(v *viper.Viper) {
	v.SetEnvPrefix("hookrelay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	SetViperStructDefaults(v, "", Config{})
}
