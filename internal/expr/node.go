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

// Package expr provides statically-typed member access and predicate expressions
// and a compiler that extracts member identities and comparisons from them.
package expr

import (
	"fmt"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/where"
)

// Node is an expression node.
//
// Implementations are [*Func], [*Convert], [*Member], [*Const], [*Compare] and [*Logical].
//
//sumtype:decl
type Node interface {
	fmt.Stringer

	exprNode() // seal for sumtype
}

// Func is a single-parameter function, `x => body`.
type Func struct {
	Param string
	Body  Node
}

// Convert is a type coercion of the operand, `(To)operand`.
type Convert struct {
	Operand Node
	To      domain.MemberType
}

// Member is a member access on the function parameter, `x.Name`.
type Member struct {
	Name string
	Type domain.MemberType
}

// Const is a literal value.
type Const struct {
	Value any
}

// Compare is a comparison of two operands.
type Compare struct {
	Op    where.Op
	Left  Node
	Right Node
}

// Logical is a boolean combination of operands.
type Logical struct {
	Op       where.Op
	Operands []Node
}

func (*Func) exprNode()    {}
func (*Convert) exprNode() {}
func (*Member) exprNode()  {}
func (*Const) exprNode()   {}
func (*Compare) exprNode() {}
func (*Logical) exprNode() {}

// String implements fmt.Stringer.
func (f *Func) String() string {
	return fmt.Sprintf("%s => %s", f.Param, f.Body)
}

// String implements fmt.Stringer.
func (c *Convert) String() string {
	return fmt.Sprintf("(%s)%s", c.To, c.Operand)
}

// String implements fmt.Stringer.
func (m *Member) String() string {
	return "x." + m.Name
}

// String implements fmt.Stringer.
func (c *Const) String() string {
	return fmt.Sprintf("%#v", c.Value)
}

// String implements fmt.Stringer.
func (c *Compare) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

// String implements fmt.Stringer.
func (l *Logical) String() string {
	if l.Op == where.OpNot && len(l.Operands) == 1 {
		return fmt.Sprintf("!(%s)", l.Operands[0])
	}

	return fmt.Sprintf("%s%v", l.Op, l.Operands)
}

// check interfaces
var (
	_ Node = (*Func)(nil)
	_ Node = (*Convert)(nil)
	_ Node = (*Member)(nil)
	_ Node = (*Const)(nil)
	_ Node = (*Compare)(nil)
	_ Node = (*Logical)(nil)
)
