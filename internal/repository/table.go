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

package repository

import (
	"strings"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/meshkey"
)

// Storage columns present in every domain table.
// Member names can't start with [domain.ReservedPrefix], so they never collide.
const (
	KeyColumn      = "_key"
	GenericsColumn = "_generics"
	MetaColumn     = "_meta"
)

// GenericsTableName is the name of the table holding generic bindings of generic domains.
const GenericsTableName = "_mesh_generics"

// Column represents a table column.
type Column struct {
	Name string
	Type domain.MemberType
}

// Table describes a domain's backing table.
type Table struct {
	Name    string
	Columns []Column

	// Unique lists columns of an additional unique constraint, if any.
	Unique []string
}

// ColumnNames returns column names in order.
func (t *Table) ColumnNames() []string {
	res := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		res[i] = c.Name
	}

	return res
}

// storageType returns the column type for the member type.
//
// Non-scalar values are stored as JSON text.
func storageType(t domain.MemberType) domain.MemberType {
	if t.Scalar() {
		return t
	}

	return domain.TypeJSON
}

// tableName returns a table name for the given key.
//
// It depends on the key only, so renaming a domain keeps its table.
func tableName(prefix string, k meshkey.MeshKey) string {
	return prefix + strings.ReplaceAll(k.String(), "-", "")
}

// NewTable returns the table for the given domain.
//
// Link domains get their link table.
func NewTable(d *domain.MeshDomain) *Table {
	if d.Link != nil {
		return NewLinkTable(*d.Link, d)
	}

	return newTable(tableName("d_", d.Key), d)
}

// NewLinkTable returns the table for the given link domain.
//
// It has a unique constraint over both link members.
func NewLinkTable(pair domain.LinkedDomains, d *domain.MeshDomain) *Table {
	t := newTable(tableName("l_", pair.Key()), d)
	t.Unique = []string{domain.LinkSetMember, domain.LinkItemMember}

	return t
}

func newTable(name string, d *domain.MeshDomain) *Table {
	t := &Table{
		Name: name,
		Columns: []Column{
			{Name: KeyColumn, Type: domain.TypeKey},
			{Name: GenericsColumn, Type: domain.TypeString},
			{Name: MetaColumn, Type: domain.TypeJSON},
		},
	}

	for _, m := range d.Members {
		t.Columns = append(t.Columns, Column{Name: m.Name, Type: storageType(m.Type)})
	}

	return t
}

// GenericsTable returns the table holding generic bindings.
func GenericsTable() *Table {
	return &Table{
		Name: GenericsTableName,
		Columns: []Column{
			{Name: KeyColumn, Type: domain.TypeKey},
			{Name: "domain", Type: domain.TypeKey},
			{Name: "generics", Type: domain.TypeString},
		},
	}
}
