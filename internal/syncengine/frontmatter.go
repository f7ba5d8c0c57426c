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

// Package syncengine implements the bidirectional synchronization between
// records and the frontmatter-prefixed text files that mirror them in a
// source-control repository: sync-out, sync-in, and conflict resolution.
package syncengine

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/hookrelay/pkg/api"
)

// delimiter is the frontmatter fence, matching the common `---` convention.
const delimiter = "---"

// idKey and typeKey are the synthetic keys the frontmatter block always
// carries alongside whatever a record's own Data holds.
const (
	idKey   = "$id"
	typeKey = "$type"
)

// maxDataDepth bounds how deeply nested a record's Data may be. Provider
// payloads are attacker-controlled; without a ceiling a deeply nested
// object would make frontmatter encoding recurse without bound.
const maxDataDepth = 32

// ErrDataTooDeep is returned when a record's Data nests past maxDataDepth.
var ErrDataTooDeep = errors.New("syncengine: record data nested too deeply to serialize")

// ErrMalformedFrontmatter is returned when Decode can't find a well-formed
// `---`-delimited block at the start of content.
var ErrMalformedFrontmatter = errors.New("syncengine: malformed frontmatter block")

// Encode renders rec as a frontmatter-prefixed document: a YAML block
// carrying $id, $type and rec.Data, a closing fence, then rec.Content
// verbatim as the body.
func Encode(rec *api.Record) (string, error) {
	if err := checkDepth(rec.Data, 0); err != nil {
		return "", err
	}

	fields := make(map[string]any, len(rec.Data)+2)
	for k, v := range rec.Data {
		fields[k] = v
	}
	fields[idKey] = rec.Key()
	fields[typeKey] = rec.Type

	header, err := yaml.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteByte('\n')
	b.Write(header)
	b.WriteString(delimiter)
	b.WriteByte('\n')
	b.WriteString(rec.Content)
	return b.String(), nil
}

// Decoded is the result of splitting a frontmatter document back into its
// structured header and free-text body.
type Decoded struct {
	ID   string
	Type string
	Data map[string]any
	Body string
}

// Decode parses a frontmatter-prefixed document produced by Encode (or an
// equivalent hand-authored file). $id and $type are pulled out of the
// header into their own fields; everything else in the header lands in
// Data.
func Decode(content string) (*Decoded, error) {
	if !strings.HasPrefix(content, delimiter) {
		return nil, ErrMalformedFrontmatter
	}

	rest := strings.TrimPrefix(content, delimiter)
	rest = strings.TrimPrefix(rest, "\n")

	closeIdx := strings.Index(rest, "\n"+delimiter)
	if closeIdx == -1 {
		return nil, ErrMalformedFrontmatter
	}

	header := rest[:closeIdx]
	body := strings.TrimPrefix(rest[closeIdx+len("\n"+delimiter):], "\n")

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(header), &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrontmatter, err)
	}
	if fields == nil {
		fields = map[string]any{}
	}

	id, _ := fields[idKey].(string)
	typ, _ := fields[typeKey].(string)
	delete(fields, idKey)
	delete(fields, typeKey)

	return &Decoded{ID: id, Type: typ, Data: fields, Body: body}, nil
}

func checkDepth(v any, depth int) error {
	if depth > maxDataDepth {
		return ErrDataTooDeep
	}
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if err := checkDepth(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := checkDepth(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
