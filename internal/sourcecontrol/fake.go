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

package sourcecontrol

import (
	"context"
	"crypto/sha1" //nolint:gosec // used only to fingerprint content, never for cryptographic purposes
	"encoding/hex"
	"fmt"
	"sync"
)

type fakeFile struct {
	content string
	hash    string
}

// FakeClient is an in-memory Client for tests that exercise the sync
// engine without a real source-control API, keyed the same way the real
// client addresses content: repo/path/branch.
type FakeClient struct {
	mu    sync.Mutex
	files map[string]fakeFile
}

// NewFakeClient builds an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{files: make(map[string]fakeFile)}
}

func fakeKey(repo, path, branch string) string {
	return repo + "\x00" + path + "\x00" + branch
}

func contentHash(content string) string {
	sum := sha1.Sum([]byte(content)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Seed pre-populates a file, as if it already existed upstream, returning
// its hash.
func (f *FakeClient) Seed(repo, path, branch, content string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := contentHash(content)
	f.files[fakeKey(repo, path, branch)] = fakeFile{content: content, hash: hash}
	return hash
}

// GetContent implements Client.
func (f *FakeClient) GetContent(_ context.Context, repo, path, branch string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[fakeKey(repo, path, branch)]
	if !ok {
		return "", "", ErrNotFound
	}
	return file.content, file.hash, nil
}

// PutContent implements Client.
func (f *FakeClient) PutContent(_ context.Context, repo, path, branch, content, _ string, expectedHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := fakeKey(repo, path, branch)
	existing, exists := f.files[key]

	if expectedHash == "" && exists {
		return "", fmt.Errorf("%w: file already exists", ErrConflict)
	}
	if expectedHash != "" {
		if !exists {
			return "", ErrConflict
		}
		if existing.hash != expectedHash {
			return "", ErrConflict
		}
	}

	newHash := contentHash(content)
	f.files[key] = fakeFile{content: content, hash: newHash}
	return newHash, nil
}

var _ Client = (*FakeClient)(nil)
