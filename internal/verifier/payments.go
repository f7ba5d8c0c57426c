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
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stacklok/hookrelay/internal/util"
	"github.com/stacklok/hookrelay/pkg/api"
)

// PaymentsHeader is the header the payments provider signs its callbacks with.
const PaymentsHeader = "stripe-signature"

// PaymentsVerifier checks the `t=<unix-seconds>,v1=<hex-hmac>,...` scheme
// used by the payments provider.
type PaymentsVerifier struct {
	Key       []byte
	Tolerance time.Duration
	now       func() time.Time
}

// NewPaymentsVerifier builds a PaymentsVerifier with the given secret and
// replay tolerance.
func NewPaymentsVerifier(key []byte, tolerance time.Duration) *PaymentsVerifier {
	return &PaymentsVerifier{Key: key, Tolerance: tolerance, now: time.Now}
}

// Provider implements Verifier.
func (*PaymentsVerifier) Provider() api.Provider { return api.ProviderPayments }

// RequiredHeaders implements Verifier.
func (*PaymentsVerifier) RequiredHeaders() []string { return []string{PaymentsHeader} }

// Verify implements Verifier.
func (v *PaymentsVerifier) Verify(rawBody []byte, headers http.Header) (api.Envelope, error) {
	header := headers.Get(PaymentsHeader)
	if header == "" {
		return api.Envelope{}, newErr(ErrMalformedHeader, "missing "+PaymentsHeader+" header")
	}

	ts, sig, err := parseTV1Header(header)
	if err != nil {
		return api.Envelope{}, newErr(ErrMalformedHeader, err.Error())
	}

	tsSeconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return api.Envelope{}, newErr(ErrMalformedHeader, "non-numeric timestamp")
	}
	eventTime := time.Unix(tsSeconds, 0)

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
	eventType, err := util.JQReadFrom[string](ctx, ".type", payload)
	if err != nil {
		return api.Envelope{}, newErr(ErrMalformedBody, "missing type field")
	}

	return api.Envelope{
		Provider:  api.ProviderPayments,
		EventID:   eventID,
		EventType: eventType,
		Payload:   rawBody,
		Signature: header,
	}, nil
}

// parseTV1Header splits a `t=<ts>,v1=<hex>,...` style header into its
// timestamp and first v1 signature, ignoring any other comma-separated
// fields (additional signing-scheme versions, etc).
func parseTV1Header(header string) (ts string, v1 string, err error) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			if v1 == "" {
				v1 = kv[1]
			}
		}
	}
	if ts == "" || v1 == "" {
		return "", "", fmt.Errorf("header missing t= or v1= field")
	}
	return ts, v1, nil
}
