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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/hookrelay/pkg/api"
)

const fixedNow = 1_700_000_000 // arbitrary fixed instant used across every test

func fakeClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func signPaymentsHeader(key []byte, ts int64, body []byte) string {
	mac := hmacSHA256(key, []byte(fmt.Sprintf("%d.%s", ts, body)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac))
}

func TestPaymentsVerifier(t *testing.T) {
	key := []byte("payments-secret")
	body := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	now := time.Unix(fixedNow, 0)

	t.Run("valid signature within tolerance", func(t *testing.T) {
		v := &PaymentsVerifier{Key: key, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		header := signPaymentsHeader(key, fixedNow, body)
		headers := http.Header{}
		headers.Set(PaymentsHeader, header)

		env, err := v.Verify(body, headers)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", env.EventID)
		assert.Equal(t, "charge.succeeded", env.EventType)
		assert.Equal(t, api.ProviderPayments, env.Provider)
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		v := &PaymentsVerifier{Key: key, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		header := signPaymentsHeader([]byte("wrong-secret"), fixedNow, body)
		headers := http.Header{}
		headers.Set(PaymentsHeader, header)

		_, err := v.Verify(body, headers)
		require.Error(t, err)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ErrInvalidSignature, verr.Kind)
	})

	t.Run("rejects replay outside tolerance", func(t *testing.T) {
		v := &PaymentsVerifier{Key: key, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		staleTS := fixedNow - int64((10 * time.Minute).Seconds())
		header := signPaymentsHeader(key, staleTS, body)
		headers := http.Header{}
		headers.Set(PaymentsHeader, header)

		_, err := v.Verify(body, headers)
		require.Error(t, err)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ErrReplayTooOld, verr.Kind)
	})

	t.Run("accepts timestamp exactly at tolerance boundary", func(t *testing.T) {
		v := &PaymentsVerifier{Key: key, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		boundaryTS := fixedNow - int64((5 * time.Minute).Seconds())
		header := signPaymentsHeader(key, boundaryTS, body)
		headers := http.Header{}
		headers.Set(PaymentsHeader, header)

		_, err := v.Verify(body, headers)
		assert.NoError(t, err)
	})

	t.Run("rejects timestamp one second past tolerance boundary", func(t *testing.T) {
		v := &PaymentsVerifier{Key: key, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		pastBoundaryTS := fixedNow - int64((5*time.Minute).Seconds()) - 1
		header := signPaymentsHeader(key, pastBoundaryTS, body)
		headers := http.Header{}
		headers.Set(PaymentsHeader, header)

		_, err := v.Verify(body, headers)
		require.Error(t, err)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ErrReplayTooOld, verr.Kind)
	})

	t.Run("rejects missing header", func(t *testing.T) {
		v := &PaymentsVerifier{Key: key, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		_, err := v.Verify(body, http.Header{})
		require.Error(t, err)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ErrMalformedHeader, verr.Kind)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		v := &PaymentsVerifier{Key: key, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		badBody := []byte(`not-json`)
		header := signPaymentsHeader(key, fixedNow, badBody)
		headers := http.Header{}
		headers.Set(PaymentsHeader, header)

		_, err := v.Verify(badBody, headers)
		require.Error(t, err)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ErrMalformedBody, verr.Kind)
	})
}

func TestIdentityVerifier(t *testing.T) {
	key := []byte("identity-secret")
	body := []byte(`{"id":"evt_2","event":"user.created"}`)
	now := time.Unix(fixedNow, 0)

	signAt := func(tsMillis int64) string {
		mac := hmacSHA256(key, []byte(fmt.Sprintf("%d.%s", tsMillis, body)))
		return fmt.Sprintf("t=%d, v1=%s", tsMillis, hex.EncodeToString(mac))
	}

	t.Run("valid signature", func(t *testing.T) {
		v := &IdentityVerifier{Key: key, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		headers := http.Header{}
		headers.Set(IdentityHeader, signAt(now.UnixMilli()))

		env, err := v.Verify(body, headers)
		require.NoError(t, err)
		assert.Equal(t, "evt_2", env.EventID)
		assert.Equal(t, "user.created", env.EventType)
	})

	t.Run("rejects stale timestamp", func(t *testing.T) {
		v := &IdentityVerifier{Key: key, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		stale := now.Add(-10 * time.Minute).UnixMilli()
		headers := http.Header{}
		headers.Set(IdentityHeader, signAt(stale))

		_, err := v.Verify(body, headers)
		require.Error(t, err)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ErrReplayTooOld, verr.Kind)
	})
}

func TestSourceControlVerifier(t *testing.T) {
	key := []byte("sourcecontrol-secret")
	body := []byte(`{"action":"opened"}`)

	sign := func(b []byte) string {
		mac := hmacSHA256(key, b)
		return "sha256=" + hex.EncodeToString(mac)
	}

	t.Run("valid signature with headers", func(t *testing.T) {
		v := &SourceControlVerifier{Key: key}
		headers := http.Header{}
		headers.Set(SourceControlSignatureHeader, sign(body))
		headers.Set(SourceControlEventHeader, "pull_request")
		headers.Set(SourceControlDeliveryHeader, "delivery-123")

		env, err := v.Verify(body, headers)
		require.NoError(t, err)
		assert.Equal(t, "delivery-123", env.EventID)
		assert.Equal(t, "pull_request", env.EventType)
	})

	t.Run("rejects missing sha256 prefix", func(t *testing.T) {
		v := &SourceControlVerifier{Key: key}
		headers := http.Header{}
		headers.Set(SourceControlSignatureHeader, hex.EncodeToString(hmacSHA256(key, body)))
		headers.Set(SourceControlEventHeader, "pull_request")
		headers.Set(SourceControlDeliveryHeader, "delivery-123")

		_, err := v.Verify(body, headers)
		require.Error(t, err)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ErrMalformedHeader, verr.Kind)
	})

	t.Run("rejects tampered body", func(t *testing.T) {
		v := &SourceControlVerifier{Key: key}
		headers := http.Header{}
		headers.Set(SourceControlSignatureHeader, sign(body))
		headers.Set(SourceControlEventHeader, "pull_request")
		headers.Set(SourceControlDeliveryHeader, "delivery-123")

		_, err := v.Verify([]byte(`{"action":"closed"}`), headers)
		require.Error(t, err)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ErrInvalidSignature, verr.Kind)
	})
}

func TestEmailVerifier(t *testing.T) {
	currentKey := []byte("current-secret")
	oldKey := []byte("rotated-out-secret")
	body := []byte(`{"type":"email.delivered"}`)
	now := time.Unix(fixedNow, 0)

	sign := func(key []byte, id string, ts int64) string {
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(fmt.Sprintf("%s.%d.%s", id, ts, body)))
		return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	}

	t.Run("valid with current key", func(t *testing.T) {
		v := &EmailVerifier{Keys: [][]byte{currentKey, oldKey}, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		headers := http.Header{}
		headers.Set(EmailIDHeader, "msg_1")
		headers.Set(EmailTimestampHeader, fmt.Sprintf("%d", fixedNow))
		headers.Set(EmailSignatureHeader, sign(currentKey, "msg_1", fixedNow))

		env, err := v.Verify(body, headers)
		require.NoError(t, err)
		assert.Equal(t, "msg_1", env.EventID)
		assert.Equal(t, "email.delivered", env.EventType)
	})

	t.Run("valid with rotated-out key among multiple candidates", func(t *testing.T) {
		v := &EmailVerifier{Keys: [][]byte{currentKey, oldKey}, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		headers := http.Header{}
		headers.Set(EmailIDHeader, "msg_2")
		headers.Set(EmailTimestampHeader, fmt.Sprintf("%d", fixedNow))
		headers.Set(EmailSignatureHeader, sign(oldKey, "msg_2", fixedNow)+" "+sign([]byte("unrelated"), "msg_2", fixedNow))

		env, err := v.Verify(body, headers)
		require.NoError(t, err)
		assert.Equal(t, "msg_2", env.EventID)
	})

	t.Run("rejects when no key matches", func(t *testing.T) {
		v := &EmailVerifier{Keys: [][]byte{currentKey}, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		headers := http.Header{}
		headers.Set(EmailIDHeader, "msg_3")
		headers.Set(EmailTimestampHeader, fmt.Sprintf("%d", fixedNow))
		headers.Set(EmailSignatureHeader, sign([]byte("not-configured"), "msg_3", fixedNow))

		_, err := v.Verify(body, headers)
		require.Error(t, err)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ErrInvalidSignature, verr.Kind)
	})

	t.Run("rejects stale timestamp beyond five minutes", func(t *testing.T) {
		v := &EmailVerifier{Keys: [][]byte{currentKey}, Tolerance: 5 * time.Minute, now: fakeClock(now)}
		stale := fixedNow - int64((6 * time.Minute).Seconds())
		headers := http.Header{}
		headers.Set(EmailIDHeader, "msg_4")
		headers.Set(EmailTimestampHeader, fmt.Sprintf("%d", stale))
		headers.Set(EmailSignatureHeader, sign(currentKey, "msg_4", stale))

		_, err := v.Verify(body, headers)
		require.Error(t, err)
		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ErrReplayTooOld, verr.Kind)
	})
}
