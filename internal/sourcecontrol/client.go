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

// Package sourcecontrol wraps the source-control provider's content API,
// the half of the sync engine that reads and writes the files records are
// mirrored to.
package sourcecontrol

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetContent when path does not exist on branch.
var ErrNotFound = errors.New("sourcecontrol: file not found")

// ErrConflict is returned by PutContent when expectedHash no longer
// matches the file's current content hash: someone else wrote to the file
// since the caller last read it.
var ErrConflict = errors.New("sourcecontrol: hash precondition failed")

// Client is the content operations the sync engine needs out of a
// source-control provider. A real implementation (GitHubClient) talks to
// the provider's REST API; a FakeClient backs tests.
type Client interface {
	// GetContent fetches path on branch of repo, returning its text content
	// and a hash identifying this exact version (the provider's blob SHA).
	// Returns ErrNotFound if path does not exist.
	GetContent(ctx context.Context, repo, path, branch string) (content string, hash string, err error)

	// PutContent writes content to path on branch of repo with the given
	// commit message. If expectedHash is non-empty, the write only
	// succeeds if the file's current hash still matches it (optimistic
	// concurrency); a mismatch returns ErrConflict. An empty expectedHash
	// means "create, the file must not already exist."
	PutContent(ctx context.Context, repo, path, branch, content, message, expectedHash string) (newHash string, err error)
}
