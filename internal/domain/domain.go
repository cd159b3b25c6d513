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

// Package domain contains domain descriptors, domain objects and generic containers.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
)

// ReservedPrefix is the prefix of storage column names; member names can't start with it.
const ReservedPrefix = "_"

// MeshDomain describes an object shape.
//
// Identity is the key only; renaming a domain does not change it.
// MeshDomain is immutable once created; use [*MeshDomain.Clone] to make changed copies.
type MeshDomain struct {
	Key       meshkey.MeshKey `json:"key"`
	Name      string          `json:"name"`
	Members   []Member        `json:"members"`
	IsGeneric bool            `json:"generic,omitempty"`
	Bindings  []TypeRef       `json:"bindings,omitempty"`

	// Link is set for link domains only.
	Link *LinkedDomains `json:"link,omitempty"`

	index map[string]int
}

// New creates a new domain descriptor with the given members.
func New(key meshkey.MeshKey, name string, members ...Member) *MeshDomain {
	d := &MeshDomain{
		Key:     key,
		Name:    name,
		Members: members,
	}
	d.buildIndex()

	return d
}

// NewGeneric creates a new generic domain descriptor bound to the given arguments.
func NewGeneric(key meshkey.MeshKey, name string, bindings []TypeRef, members ...Member) *MeshDomain {
	d := New(key, name, members...)
	d.IsGeneric = true
	d.Bindings = bindings

	return d
}

// buildIndex builds member index.
func (d *MeshDomain) buildIndex() {
	d.index = make(map[string]int, len(d.Members))
	for i, m := range d.Members {
		if _, ok := d.index[m.Name]; !ok {
			d.index[m.Name] = i
		}
	}
}

// Member returns the member with the given name.
func (d *MeshDomain) Member(name string) (Member, bool) {
	if d.index == nil {
		// descriptor was created as a literal
		for _, m := range d.Members {
			if m.Name == name {
				return m, true
			}
		}

		return Member{}, false
	}

	i, ok := d.index[name]
	if !ok {
		return Member{}, false
	}

	return d.Members[i], true
}

// MemberNames returns member names in declaration order.
func (d *MeshDomain) MemberNames() []string {
	res := make([]string, len(d.Members))
	for i, m := range d.Members {
		res[i] = m.Name
	}

	return res
}

// Generics returns bound generic arguments; it is empty for non-generic domains.
func (d *MeshDomain) Generics() []TypeRef {
	if !d.IsGeneric {
		return nil
	}

	res := make([]TypeRef, len(d.Bindings))
	copy(res, d.Bindings)

	return res
}

// Equal returns true if both descriptors describe the same domain.
func (d *MeshDomain) Equal(other *MeshDomain) bool {
	if d == nil || other == nil {
		return d == other
	}

	return d.Key == other.Key
}

// IsLink returns true for link domains.
func (d *MeshDomain) IsLink() bool {
	return d.Link != nil
}

// Clone returns a deep copy of d.
func (d *MeshDomain) Clone() *MeshDomain {
	res := &MeshDomain{
		Key:       d.Key,
		Name:      d.Name,
		Members:   make([]Member, len(d.Members)),
		IsGeneric: d.IsGeneric,
		Bindings:  d.Generics(),
	}

	for i, m := range d.Members {
		res.Members[i] = m
		res.Members[i].Of = append([]TypeRef(nil), m.Of...)
	}

	if d.Link != nil {
		l := *d.Link
		res.Link = &l
	}

	res.buildIndex()

	return res
}

// Validate checks that the descriptor is well-formed.
//
// It returns *mesherrors.Error with ErrorCodeInvalidDomain code.
func (d *MeshDomain) Validate() error {
	if d.Key.IsNull() {
		return invalidDomainf(d, "domain %q has no key", d.Name)
	}

	if strings.TrimSpace(d.Name) == "" {
		return invalidDomainf(d, "domain %s has no name", d.Key)
	}

	if !d.IsGeneric && len(d.Bindings) > 0 {
		return invalidDomainf(d, "non-generic domain %q has generic bindings", d.Name)
	}

	seen := make(map[string]struct{}, len(d.Members))

	for _, m := range d.Members {
		if m.Name == "" {
			return invalidDomainf(d, "domain %q has a member without name", d.Name)
		}

		if strings.HasPrefix(m.Name, ReservedPrefix) {
			return invalidDomainf(d, "member name %q must not start with %q", m.Name, ReservedPrefix)
		}

		if strings.ContainsAny(m.Name, "$.\"`") {
			return invalidDomainf(d, "member name %q contains reserved characters", m.Name)
		}

		// column names are case-insensitive in all supported dialects
		folded := strings.ToLower(m.Name)
		if _, ok := seen[folded]; ok {
			return invalidDomainf(d, "duplicate member %q", m.Name)
		}
		seen[folded] = struct{}{}

		if !m.Type.Valid() {
			return invalidDomainf(d, "member %q has unknown type %q", m.Name, m.Type)
		}

		switch m.Type {
		case TypeGeneric:
			if !d.IsGeneric {
				return invalidDomainf(d, "generic member %q in non-generic domain %q", m.Name, d.Name)
			}

			if m.Param < 0 || m.Param >= len(d.Bindings) {
				return invalidDomainf(d, "member %q is bound to missing generic argument %d", m.Name, m.Param)
			}

		case TypeMap, TypeSet:
			if _, err := NewContainer(containerKinds[m.Type], m.Of); err != nil {
				return invalidDomainf(d, "member %q: %v", m.Name, err)
			}
		}
	}

	return nil
}

// invalidDomainf returns ErrorCodeInvalidDomain error.
func invalidDomainf(d *MeshDomain, format string, a ...any) error {
	return mesherrors.NewWithArgument(mesherrors.ErrorCodeInvalidDomain, fmt.Errorf(format, a...), d.Name)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *MeshDomain) UnmarshalJSON(b []byte) error {
	type plain MeshDomain

	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}

	*d = MeshDomain(p)
	d.buildIndex()

	return nil
}

// String implements fmt.Stringer.
func (d *MeshDomain) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Key)
}

// check interfaces
var (
	_ json.Unmarshaler = (*MeshDomain)(nil)
	_ fmt.Stringer     = (*MeshDomain)(nil)
)
