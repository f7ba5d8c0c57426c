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

// Package util holds small helpers used by the verifier package.
package util

import (
	"context"
	"fmt"

	"github.com/itchyny/gojq"
)

// JQReadFrom evaluates a jq query against an already-decoded JSON value
// (typically map[string]any) and type-asserts the first result to T. Loose
// provider payloads are read this way instead of declaring a struct per
// provider event shape, the same tradeoff upstream event-handling code
// makes when it only needs one or two fields out of an otherwise-untyped
// webhook body.
func JQReadFrom[T any](_ context.Context, query string, payload any) (T, error) {
	var zero T

	q, err := gojq.Parse(query)
	if err != nil {
		return zero, fmt.Errorf("parsing jq query %q: %w", query, err)
	}

	iter := q.Run(payload)
	v, ok := iter.Next()
	if !ok {
		return zero, fmt.Errorf("jq query %q produced no result", query)
	}
	if err, ok := v.(error); ok {
		return zero, fmt.Errorf("evaluating jq query %q: %w", query, err)
	}

	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("jq query %q produced %T, expected %T", query, v, zero)
	}
	return typed, nil
}
