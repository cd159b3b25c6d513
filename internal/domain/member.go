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
	"fmt"
	"strings"

	"github.com/meshdb/meshdb/internal/meshkey"
)

// MemberType represents the type of a domain member.
type MemberType string

// Member types.
const (
	TypeString  MemberType = "string"
	TypeInt     MemberType = "int"
	TypeFloat   MemberType = "float"
	TypeBool    MemberType = "bool"
	TypeTime    MemberType = "time"
	TypeKey     MemberType = "key"
	TypeJSON    MemberType = "json"
	TypeMap     MemberType = "map"
	TypeSet     MemberType = "set"
	TypeGeneric MemberType = "generic"
)

// memberTypes contains all valid member types.
var memberTypes = map[MemberType]struct{}{
	TypeString:  {},
	TypeInt:     {},
	TypeFloat:   {},
	TypeBool:    {},
	TypeTime:    {},
	TypeKey:     {},
	TypeJSON:    {},
	TypeMap:     {},
	TypeSet:     {},
	TypeGeneric: {},
}

// Valid returns true if t is a known member type.
func (t MemberType) Valid() bool {
	_, ok := memberTypes[t]
	return ok
}

// Scalar returns true for types that are stored and compared natively.
func (t MemberType) Scalar() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeTime, TypeKey:
		return true
	default:
		return false
	}
}

// Member describes a single typed member of a domain.
type Member struct {
	Name string     `json:"name" yaml:"name"`
	Type MemberType `json:"type" yaml:"type"`

	// Param is the index of the domain's generic argument a TypeGeneric member is bound to.
	Param int `json:"param,omitempty" yaml:"param,omitempty"`

	// Of holds container generics: a single item type for TypeSet,
	// key and value types for TypeMap.
	Of []TypeRef `json:"of,omitempty" yaml:"of,omitempty"`
}

// TypeRef is a generic argument: either a member type or a reference to another domain.
type TypeRef struct {
	Type   MemberType      `json:"type" yaml:"type"`
	Domain meshkey.MeshKey `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// String returns a compact representation used in generics metadata.
func (r TypeRef) String() string {
	if r.Domain.IsZero() {
		return string(r.Type)
	}

	return string(r.Type) + ":" + r.Domain.String()
}

// ParseTypeRef parses the representation returned by [TypeRef.String].
func ParseTypeRef(s string) (TypeRef, error) {
	t, k, found := strings.Cut(s, ":")

	res := TypeRef{Type: MemberType(t)}
	if !res.Type.Valid() {
		return TypeRef{}, fmt.Errorf("unknown type %q", t)
	}

	if found {
		var err error
		if res.Domain, err = meshkey.Parse(k); err != nil {
			return TypeRef{}, err
		}
	}

	return res, nil
}

// FormatGenerics returns the generics metadata value for the given bindings.
//
// It is an empty string for no bindings.
func FormatGenerics(refs []TypeRef) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}

	return strings.Join(parts, ",")
}

// ParseGenerics parses the generics metadata value returned by [FormatGenerics].
func ParseGenerics(s string) ([]TypeRef, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	res := make([]TypeRef, len(parts))

	for i, p := range parts {
		var err error
		if res[i], err = ParseTypeRef(p); err != nil {
			return nil, err
		}
	}

	return res, nil
}
