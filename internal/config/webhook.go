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

// WebhookConfig is the configuration for verifying inbound provider
// webhooks. An empty HMAC key disables the corresponding provider's
// endpoint: no verifier is built for it and the ingress router answers 404
// on its path.
//
// These values are loaded once at process start and are never logged.
type WebhookConfig struct {
	// PaymentsHMACKey verifies the payments provider's `stripe-signature`-style header.
	PaymentsHMACKey string `mapstructure:"payments_hmac_key"`
	// IdentityHMACKey verifies the identity provider's `workos-signature`-style header.
	IdentityHMACKey string `mapstructure:"identity_hmac_key"`
	// SourceControlHMACKey verifies the source-control provider's `x-hub-signature-256` header.
	SourceControlHMACKey string `mapstructure:"source_control_hmac_key"`
	// EmailHMACKeys verifies the email provider's Svix-compatible signature headers.
	// More than one key supports secret rotation; any match is accepted.
	EmailHMACKeys []string `mapstructure:"email_hmac_keys"`

	// ReplayToleranceMs is the maximum permitted skew, in milliseconds,
	// between a signed timestamp and the verifier's clock.
	ReplayToleranceMs int64 `mapstructure:"replay_tolerance_ms" default:"300000"`
}
