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

// Package api holds the data types shared across the ingress, event-store,
// record-store and sync-engine packages -- the wire-and-storage contract of
// the whole service in one place, so every internal package imports these
// types rather than redeclaring its own.
package api

import "time"

// Provider identifies which external system a webhook came from.
type Provider string

// The four providers this core accepts callbacks from.
const (
	ProviderPayments      Provider = "payments"
	ProviderIdentity      Provider = "identity"
	ProviderSourceControl Provider = "source-control"
	ProviderEmail         Provider = "email"
)

// Valid reports whether p is one of the four known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderPayments, ProviderIdentity, ProviderSourceControl, ProviderEmail:
		return true
	default:
		return false
	}
}

// Envelope is the canonical, provider-agnostic shape the Verifier produces
// for every accepted callback.
type Envelope struct {
	Provider  Provider
	EventID   string
	EventType string
	// Payload is the exact byte-for-byte body that was verified.
	Payload []byte
	// Signature is the raw header value(s) that were checked, retained
	// for forensics. Never a secret -- the HMAC key itself is never
	// placed here.
	Signature string
}

// WebhookEvent is one row per received callback, as persisted by the event
// store.
type WebhookEvent struct {
	ID          string
	Provider    Provider
	EventID     string
	EventType   string
	Payload     []byte
	Signature   string
	Processed   bool
	ProcessedAt *time.Time
	Error       *string
	CreatedAt   time.Time
}

// SyncStatus is the four-state lifecycle of a Record's synchronization with
// its external file.
type SyncStatus string

// The states a Record's sync status can take.
const (
	SyncUnsynced SyncStatus = "unsynced"
	SyncSynced   SyncStatus = "synced"
	SyncDirty    SyncStatus = "dirty"
	SyncConflict SyncStatus = "conflict"
)

// Record is the structured item synchronized with a source-control
// repository.
type Record struct {
	Namespace string
	ID        string
	Type      string
	Data      map[string]any
	Content   string

	Repository string
	Path       string
	Branch     string

	LastSyncedHash *string
	LastSyncedAt   *time.Time
	SyncStatus     SyncStatus
}

// Key returns the "$id" value this record serializes to in frontmatter.
func (r *Record) Key() string {
	return r.Namespace + "/" + r.ID
}

// HasSyncLocation reports whether repository/path/branch are all set, the
// precondition for any sync-status other than unsynced.
func (r *Record) HasSyncLocation() bool {
	return r.Repository != "" && r.Path != "" && r.Branch != ""
}

// ConflictStatus is the lifecycle of a Conflict row.
type ConflictStatus string

// The states a Conflict's status can take.
const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
	ConflictFailed   ConflictStatus = "failed"
)

// ResolutionStrategy is one of the four ways a Conflict may be resolved.
type ResolutionStrategy string

// The supported resolution strategies.
const (
	StrategyOurs   ResolutionStrategy = "ours"
	StrategyTheirs ResolutionStrategy = "theirs"
	StrategyMerge  ResolutionStrategy = "merge"
	StrategyManual ResolutionStrategy = "manual"
)

// Conflict is one row per unresolved divergence between a Record and its
// external file.
type Conflict struct {
	ID         string
	Namespace  string
	RecordID   string
	Repository string
	Path       string
	Branch     string

	ExpectedHash string
	ObservedHash string

	LocalContent  string
	RemoteContent string

	CreatedAt time.Time
	Status    ConflictStatus
	Strategy  ResolutionStrategy
	ResolvedAt *time.Time
	Error      *string
}
