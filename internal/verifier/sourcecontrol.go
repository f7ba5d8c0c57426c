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

package verifier

import (
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/stacklok/hookrelay/pkg/api"
)

// Source-control provider headers, matching github.com/google/go-github's
// own constants (X-Hub-Signature-256, X-GitHub-Event, X-GitHub-Delivery).
const (
	SourceControlSignatureHeader = "x-hub-signature-256"
	SourceControlEventHeader     = "x-github-event"
	SourceControlDeliveryHeader  = "x-github-delivery"
)

// SourceControlVerifier checks the `sha256=<hex-hmac>` scheme used by the
// source-control provider. There is no timestamp in this scheme: freshness
// is not enforced here, idempotency on the delivery id protects against
// replay instead (spec §4.2).
type SourceControlVerifier struct {
	Key []byte
}

// NewSourceControlVerifier builds a SourceControlVerifier with the given secret.
func NewSourceControlVerifier(key []byte) *SourceControlVerifier {
	return &SourceControlVerifier{Key: key}
}

// Provider implements Verifier.
func (*SourceControlVerifier) Provider() api.Provider { return api.ProviderSourceControl }

// RequiredHeaders implements Verifier.
func (*SourceControlVerifier) RequiredHeaders() []string {
	return []string{SourceControlSignatureHeader, SourceControlEventHeader, SourceControlDeliveryHeader}
}

// Verify implements Verifier.
func (v *SourceControlVerifier) Verify(rawBody []byte, headers http.Header) (api.Envelope, error) {
	sigHeader := headers.Get(SourceControlSignatureHeader)
	if sigHeader == "" {
		return api.Envelope{}, newErr(ErrMalformedHeader, "missing "+SourceControlSignatureHeader+" header")
	}
	const prefix = "sha256="
	if !strings.HasPrefix(sigHeader, prefix) {
		return api.Envelope{}, newErr(ErrMalformedHeader, "signature header missing sha256= prefix")
	}

	eventID := headers.Get(SourceControlDeliveryHeader)
	if eventID == "" {
		return api.Envelope{}, newErr(ErrMalformedHeader, "missing "+SourceControlDeliveryHeader+" header")
	}
	eventType := headers.Get(SourceControlEventHeader)
	if eventType == "" {
		return api.Envelope{}, newErr(ErrMalformedHeader, "missing "+SourceControlEventHeader+" header")
	}

	expected := hmacSHA256(v.Key, rawBody)
	got, err := hex.DecodeString(strings.TrimPrefix(sigHeader, prefix))
	if err != nil || !constantTimeEqual(expected, got) {
		return api.Envelope{}, newErr(ErrInvalidSignature, "signature mismatch")
	}

	return api.Envelope{
		Provider:  api.ProviderSourceControl,
		EventID:   eventID,
		EventType: eventType,
		Payload:   rawBody,
		Signature: sigHeader,
	}, nil
}
