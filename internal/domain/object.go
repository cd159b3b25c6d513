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
	"github.com/meshdb/meshdb/internal/meshkey"
)

// MetadataGenerics is the metadata entry holding serialized generic bindings of an object.
//
// It is always present on inserted objects; it is empty for non-generic domains.
const MetadataGenerics = "generics"

// Object is an instance of a domain.
//
// A new unsaved object may carry the null key; the store assigns a key on insert.
type Object struct {
	Key      meshkey.MeshKey   `json:"key"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Values   map[string]any    `json:"values"`
}

// NewObject returns a new unsaved object with the given member values.
func NewObject(values map[string]any) *Object {
	if values == nil {
		values = map[string]any{}
	}

	return &Object{
		Key:      meshkey.Null,
		Metadata: map[string]string{},
		Values:   values,
	}
}

// Get returns the value of the given member, or nil.
func (o *Object) Get(name string) any {
	return o.Values[name]
}

// Generics returns the generics metadata entry and whether it is present.
func (o *Object) Generics() (string, bool) {
	g, ok := o.Metadata[MetadataGenerics]
	return g, ok
}

// Updater identifies one existing object by key
// and the subset of its members to change.
//
// Members not mentioned in Values are never touched.
type Updater struct {
	Key    meshkey.MeshKey `json:"key"`
	Values map[string]any  `json:"values"`
}
