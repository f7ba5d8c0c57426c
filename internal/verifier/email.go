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
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stacklok/hookrelay/internal/util"
	"github.com/stacklok/hookrelay/pkg/api"
)

// Svix-compatible headers used by the email provider.
const (
	EmailIDHeader        = "svix-id"
	EmailTimestampHeader = "svix-timestamp"
	EmailSignatureHeader = "svix-signature"
)

// EmailVerifier checks the Svix-compatible signature scheme used by the
// transactional-email provider: HMAC-SHA-256(key, id.timestamp.body),
// base64-encoded, with any of several rotated keys accepted.
type EmailVerifier struct {
	Keys      [][]byte
	Tolerance time.Duration
	now       func() time.Time
}

// NewEmailVerifier builds an EmailVerifier from one or more rotated keys.
func NewEmailVerifier(keys [][]byte, tolerance time.Duration) *EmailVerifier {
	return &EmailVerifier{Keys: keys, Tolerance: tolerance, now: time.Now}
}

// Provider implements Verifier.
func (*EmailVerifier) Provider() api.Provider { return api.ProviderEmail }

// RequiredHeaders implements Verifier.
func (*EmailVerifier) RequiredHeaders() []string {
	return []string{EmailIDHeader, EmailTimestampHeader, EmailSignatureHeader}
}

// Verify implements Verifier.
func (v *EmailVerifier) Verify(rawBody []byte, headers http.Header) (api.Envelope, error) {
	svixID := headers.Get(EmailIDHeader)
	svixTimestamp := headers.Get(EmailTimestampHeader)
	svixSignature := headers.Get(EmailSignatureHeader)

	if svixID == "" || svixTimestamp == "" || svixSignature == "" {
		return api.Envelope{}, newErr(ErrMalformedHeader, "missing one of svix-id/svix-timestamp/svix-signature")
	}

	tsSeconds, err := strconv.ParseInt(svixTimestamp, 10, 64)
	if err != nil {
		return api.Envelope{}, newErr(ErrMalformedHeader, "non-numeric svix-timestamp")
	}
	eventTime := time.Unix(tsSeconds, 0)

	now := v.now
	if now == nil {
		now = time.Now
	}
	if skew := now().Sub(eventTime); skew > v.Tolerance || skew < -v.Tolerance {
		return api.Envelope{}, newErr(ErrReplayTooOld, "timestamp outside replay tolerance")
	}

	signedContent := svixID + "." + svixTimestamp + "." + string(rawBody)

	if !v.anyKeyMatches(signedContent, svixSignature) {
		return api.Envelope{}, newErr(ErrInvalidSignature, "no configured key matched signature")
	}

	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return api.Envelope{}, newErr(ErrMalformedBody, "invalid JSON body")
	}
	eventType, err := util.JQReadFrom[string](context.Background(), ".type", payload)
	if err != nil {
		return api.Envelope{}, newErr(ErrMalformedBody, "missing type field")
	}

	return api.Envelope{
		Provider:  api.ProviderEmail,
		EventID:   svixID,
		EventType: eventType,
		Payload:   rawBody,
		Signature: svixSignature,
	}, nil
}

// anyKeyMatches accepts the signature if any configured key (current or a
// rotated-out predecessor) produces a match against any of the
// space-separated `v1,<base64>` candidates in the header.
func (v *EmailVerifier) anyKeyMatches(signedContent, header string) bool {
	candidates := strings.Fields(header)
	for _, candidate := range candidates {
		parts := strings.SplitN(candidate, ",", 2)
		if len(parts) != 2 || parts[0] != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			continue
		}
		for _, key := range v.Keys {
			mac := hmac.New(sha256.New, key)
			mac.Write([]byte(signedContent))
			if constantTimeEqual(mac.Sum(nil), got) {
				return true
			}
		}
	}
	return false
}
