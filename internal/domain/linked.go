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

	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
)

// Link domain members.
const (
	LinkSetMember  = "set"
	LinkItemMember = "item"
)

// linkNamespace is the namespace of derived link domain keys.
var linkNamespace = meshkey.MustParse("2f1d9c5e-6a0b-4d8e-9f3a-7c4b1e2d5a60")

// LinkedDomains is an unordered pair of domain keys.
//
// Use [NewLinkedDomains] to get the canonical form that is usable as a map key.
type LinkedDomains struct {
	A meshkey.MeshKey `json:"a"`
	B meshkey.MeshKey `json:"b"`
}

// NewLinkedDomains returns a canonical pair: the smaller key first.
//
// NewLinkedDomains(a, b) == NewLinkedDomains(b, a).
func NewLinkedDomains(a, b meshkey.MeshKey) LinkedDomains {
	if b.Compare(a) < 0 {
		a, b = b, a
	}

	return LinkedDomains{A: a, B: b}
}

// Canonical returns the canonical form of the pair.
func (p LinkedDomains) Canonical() LinkedDomains {
	return NewLinkedDomains(p.A, p.B)
}

// Key returns the link domain key; it does not depend on the order of the pair.
func (p LinkedDomains) Key() meshkey.MeshKey {
	c := p.Canonical()
	return meshkey.Derive(linkNamespace, c.A.String(), c.B.String())
}

// Contains returns true if k is one of the pair's keys.
func (p LinkedDomains) Contains(k meshkey.MeshKey) bool {
	return p.A == k || p.B == k
}

// String implements fmt.Stringer.
func (p LinkedDomains) String() string {
	c := p.Canonical()
	return fmt.Sprintf("{%s, %s}", c.A, c.B)
}

// NewLinkDomain derives the link domain descriptor for the given pair and its member domains.
//
// The result is deterministic and does not depend on the order of a and b.
// It has exactly two key members: set and item.
func NewLinkDomain(pair LinkedDomains, a, b *MeshDomain) (*MeshDomain, error) {
	pair = pair.Canonical()

	if a.Key == pair.B && b.Key == pair.A {
		a, b = b, a
	}

	if a.Key != pair.A || b.Key != pair.B {
		return nil, mesherrors.NewWithArgument(
			mesherrors.ErrorCodeInvalidDomain,
			fmt.Errorf("domains %s and %s do not match pair %s", a, b, pair),
			pair.String(),
		)
	}

	d := New(
		pair.Key(),
		fmt.Sprintf("link(%s,%s)", a.Name, b.Name),
		Member{Name: LinkSetMember, Type: TypeKey},
		Member{Name: LinkItemMember, Type: TypeKey},
	)
	d.Link = &pair

	return d, nil
}

// check interfaces
var (
	_ fmt.Stringer = LinkedDomains{}
)
