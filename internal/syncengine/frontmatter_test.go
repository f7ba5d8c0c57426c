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

package syncengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/hookrelay/internal/syncengine"
	"github.com/stacklok/hookrelay/pkg/api"
)

func TestEncodeDecode_RoundTrips(t *testing.T) {
	rec := &api.Record{
		Namespace: "incidents",
		ID:        "INC-42",
		Type:      "incident",
		Data: map[string]any{
			"severity": "sev1",
			"tags":     []any{"database", "prod"},
		},
		Content: "## Summary\n\nThe database fell over.\n",
	}

	encoded, err := syncengine.Encode(rec)
	require.NoError(t, err)
	assert.Contains(t, encoded, "$id: incidents/INC-42")
	assert.Contains(t, encoded, "severity: sev1")
	assert.Contains(t, encoded, "The database fell over.")

	decoded, err := syncengine.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "incidents/INC-42", decoded.ID)
	assert.Equal(t, "incident", decoded.Type)
	assert.Equal(t, "sev1", decoded.Data["severity"])
	assert.Equal(t, "## Summary\n\nThe database fell over.\n", decoded.Body)
}

func TestDecode_RejectsMissingFence(t *testing.T) {
	_, err := syncengine.Decode("no frontmatter here")
	assert.ErrorIs(t, err, syncengine.ErrMalformedFrontmatter)
}

func TestDecode_RejectsUnclosedFence(t *testing.T) {
	_, err := syncengine.Decode("---\nfoo: bar\nnever closed")
	assert.ErrorIs(t, err, syncengine.ErrMalformedFrontmatter)
}

func TestEncode_RejectsDataNestedTooDeeply(t *testing.T) {
	var deep any = "leaf"
	for i := 0; i < 64; i++ {
		deep = map[string]any{"nested": deep}
	}

	rec := &api.Record{
		Namespace: "ns", ID: "id", Type: "t",
		Data: map[string]any{"root": deep},
	}

	_, err := syncengine.Encode(rec)
	assert.ErrorIs(t, err, syncengine.ErrDataTooDeep)
}
