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
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/stacklok/hookrelay/internal/util"
	"github.com/stacklok/hookrelay/pkg/api"
)

// IdentityHeader is the header the identity provider signs its callbacks with.
const IdentityHeader = "workos-signature"

// IdentityVerifier checks the `t=<unix-ms>, v1=<hex-hmac>` scheme used by
// the workforce-identity provider.
type IdentityVerifier struct {
	Key       []byte
	Tolerance time.Duration
	now       func() time.Time
}

// NewIdentityVerifier builds an IdentityVerifier with the given secret and
// replay tolerance.
func NewIdentityVerifier(key []byte, tolerance time.Duration) *IdentityVerifier {
	return &IdentityVerifier{Key: key, Tolerance: tolerance, now: time.Now}
}

// Provider implements Verifier.
func (*IdentityVerifier) Provider() api.Provider { return api.ProviderIdentity }

// RequiredHeaders implements Verifier.
func (*IdentityVerifier) RequiredHeaders() []string { return []string{IdentityHeader} }

// Verify implements Verifier.
func (v *IdentityVerifier) Verify(rawBody []byte, headers http.Header) (api.Envelope, error) {
	header := headers.Get(IdentityHeader)
	if header == "" {
		return api.Envelope{}, newErr(ErrMalformedHeader, "missing "+IdentityHeader+" header")
	}

	ts, sig, err := parseTV1Header(header)
	if err != nil {
		return api.Envelope{}, newErr(ErrMalformedHeader, err.Error())
	}

	tsMillis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return api.Envelope{}, newErr(ErrMalformedHeader, "non-numeric timestamp")
	}
	eventTime := time.UnixMilli(tsMillis)

	now := v.now
	if now == nil {
		now = time.Now
	}
	if skew := now().Sub(eventTime); skew > v.Tolerance || skew < -v.Tolerance {
		return api.Envelope{}, newErr(ErrReplayTooOld, "timestamp outside replay tolerance")
	}

	signedPayload := ts + "." + string(rawBody)
	expected := hmacSHA256(v.Key, []byte(signedPayload))

	got, err := hex.DecodeString(sig)
	if err != nil || !constantTimeEqual(expected, got) {
		return api.Envelope{}, newErr(ErrInvalidSignature, "signature mismatch")
	}

	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return api.Envelope{}, newErr(ErrMalformedBody, "invalid JSON body")
	}

	ctx := context.Background()
	eventID, err := util.JQReadFrom[string](ctx, ".id", payload)
	if err != nil {
		return api.Envelope{}, newErr(ErrMalformedBody, "missing id field")
	}
	eventType, err := util.JQReadFrom[string](ctx, ".event", payload)
	if err != nil {
		return api.Envelope{}, newErr(ErrMalformedBody, "missing event field")
	}

	return api.Envelope{
		Provider:  api.ProviderIdentity,
		EventID:   eventID,
		EventType: eventType,
		Payload:   rawBody,
		Signature: header,
	}, nil
}
