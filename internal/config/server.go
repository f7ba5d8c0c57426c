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
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// HTTPServerConfig is the configuration for the ingress HTTP server.
type HTTPServerConfig struct {
	// Host is the host to bind to.
	Host string `mapstructure:"host" default:"0.0.0.0"`
	// Port is the port to bind to.
	Port int `mapstructure:"port" default:"8080"`
	// ShutdownGraceSeconds is how long in-flight requests are given to
	// drain before the listener is torn down.
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds" default:"30"`
}

// GetAddress returns the address to bind to.
func (s *HTTPServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RegisterHTTPServerFlags registers the flags for the ingress HTTP server.
func RegisterHTTPServerFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := BindConfigFlag(v, flags, "http_server.host", "http-host", "0.0.0.0",
		"Host to bind the HTTP ingress server to", flags.String); err != nil {
		return err
	}
	if err := BindConfigFlag(v, flags, "http_server.port", "http-port", 8080,
		"Port to bind the HTTP ingress server to", flags.Int); err != nil {
		return err
	}
	return BindConfigFlag(v, flags, "http_server.shutdown_grace_seconds", "http-shutdown-grace-seconds", 30,
		"Seconds to let in-flight requests drain before shutdown", flags.Int)
}
