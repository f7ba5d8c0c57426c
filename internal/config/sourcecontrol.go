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

// SourceControlConfig is the configuration for the source-control API
// collaborator used by the sync engines.
type SourceControlConfig struct {
	// Token is the access token used to call the source-control REST API.
	// Never logged.
	Token string `mapstructure:"token"`
	// APIBaseURL overrides the default API endpoint; used for testing
	// against a fake server.
	APIBaseURL string `mapstructure:"api_base_url"`
	// CommitAuthorName/Email are attached to every commit this engine makes.
	CommitAuthorName  string `mapstructure:"commit_author_name" default:"hookrelay-bot"`
	CommitAuthorEmail string `mapstructure:"commit_author_email" default:"hookrelay-bot@users.noreply.github.com"`
}
