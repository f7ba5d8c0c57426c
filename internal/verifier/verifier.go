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

// Package verifier validates the four providers' distinct HMAC signature
// schemes and produces a canonical api.Envelope. No verifier parses the
// body further than is needed to pull out the event id and type -- business
// logic belongs to the dispatcher's handlers, not here.
package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"

	"github.com/stacklok/hookrelay/pkg/api"
)

// ErrorKind is a closed enum of the ways verification can fail.
type ErrorKind string

// The error kinds this package can return, matching spec §7 exactly.
const (
	ErrInvalidSignature ErrorKind = "invalid_signature"
	ErrReplayTooOld      ErrorKind = "replay_too_old"
	ErrMalformedHeader   ErrorKind = "malformed_header"
	ErrMalformedBody     ErrorKind = "malformed_body"
)

// Error is the error type every verifier returns on rejection.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func newErr(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Verifier validates one provider's signature scheme and extracts the
// canonical envelope from a raw request.
type Verifier interface {
	// Provider is the provider this verifier handles.
	Provider() api.Provider
	// RequiredHeaders lists the header(s) Verify needs; ingress checks them
	// before calling Verify and answers 401 when one is missing, without
	// this package needing to know about http.Request.
	RequiredHeaders() []string
	// Verify checks the signature in headers against rawBody and, on
	// success, parses out the event id/type into an api.Envelope.
	Verify(rawBody []byte, headers http.Header) (api.Envelope, error)
}

// hmacSHA256 computes HMAC-SHA-256(key, msg).
func hmacSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// constantTimeEqual reports whether a and b are byte-for-byte equal,
// without the comparison's duration leaking which byte differed first.
func constantTimeEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
