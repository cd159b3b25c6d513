// Copyright 2021 FerretDB Inc.
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

package domain

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/util/lazyerrors"
)

// EntriesField is the reserved wire field holding container entries.
//
// It can't collide with member names because they can't start with [ReservedPrefix]
// nor contain "$".
const EntriesField = "$$entries"

// MarshalContainer encodes ordinary members and container entries into a single JSON object.
//
// Sets are encoded as an array of items, maps as an array of [key, value] pairs.
// Container may be nil for plain objects.
func MarshalContainer(c Container, ordinary map[string]any) ([]byte, error) {
	if _, ok := ordinary[EntriesField]; ok {
		return nil, mesherrors.NewWithArgument(
			mesherrors.ErrorCodeInvalidValue,
			fmt.Errorf("member name %q is reserved", EntriesField),
			EntriesField,
		)
	}

	doc := make(map[string]any, len(ordinary)+1)
	for k, v := range ordinary {
		doc[k] = v
	}

	if c != nil {
		doc[EntriesField] = c.rawEntries()
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return b, nil
}

// UnmarshalContainer decodes data produced by [MarshalContainer].
//
// The reserved entries field is consumed first.
// The container is rebuilt from the declared generics, never from the wire data itself.
// Remaining members are returned as ordinary values.
func UnmarshalContainer(data []byte, kind Kind, generics []TypeRef) (Container, map[string]any, error) {
	if !gjson.ValidBytes(data) {
		return nil, nil, mesherrors.New(mesherrors.ErrorCodeInvalidValue, "invalid container JSON")
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, nil, mesherrors.Errorf(mesherrors.ErrorCodeInvalidValue, "expected JSON object, got %s", root.Type)
	}

	c, err := NewContainer(kind, generics)
	if err != nil {
		return nil, nil, mesherrors.NewWithArgument(mesherrors.ErrorCodeInvalidValue, err, kind.String())
	}

	var entries gjson.Result

	root.ForEach(func(k, v gjson.Result) bool {
		if k.String() == EntriesField {
			entries = v
			return false
		}

		return true
	})

	if entries.Exists() {
		if c == nil {
			return nil, nil, mesherrors.Errorf(mesherrors.ErrorCodeInvalidValue, "unexpected %q for %s kind", EntriesField, kind)
		}

		if !entries.IsArray() {
			return nil, nil, mesherrors.Errorf(mesherrors.ErrorCodeInvalidValue, "%q must be an array", EntriesField)
		}

		for _, e := range entries.Array() {
			if err = c.loadEntry(e); err != nil {
				return nil, nil, mesherrors.NewWithArgument(mesherrors.ErrorCodeInvalidValue, err, e.Raw)
			}
		}
	}

	ordinary := map[string]any{}

	root.ForEach(func(k, v gjson.Result) bool {
		if name := k.String(); name != EntriesField {
			ordinary[name] = v.Value()
		}

		return true
	})

	return c, ordinary, nil
}
