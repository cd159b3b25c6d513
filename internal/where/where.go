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

// Package where provides a backend-agnostic predicate tree.
//
// Property names are resolved against a domain's members only when the tree is translated.
package where

import (
	"fmt"
	"strings"
)

// Op represents a predicate operator.
type Op string

// Comparison operators.
const (
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpLt Op = "lt"
	OpLe Op = "le"
	OpGt Op = "gt"
	OpGe Op = "ge"
	OpIn Op = "in"
)

// Boolean combinators.
const (
	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"

	// OpTrue is the explicit unrestricted predicate.
	OpTrue Op = "true"
)

// IsComparison returns true for comparison operators.
func (op Op) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIn:
		return true
	default:
		return false
	}
}

// Flip returns the operator to use when operands are swapped.
//
// For example, `5 < x` is `x > 5`.
func (op Op) Flip() Op {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	default:
		return op
	}
}

// Node is a node of a predicate tree.
//
// Comparison nodes have Property and Value (a slice for OpIn);
// combinator nodes have Children.
type Node struct {
	Op       Op      `json:"op"`
	Property string  `json:"property,omitempty"`
	Value    any     `json:"value,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

func compare(op Op, property string, value any) *Node {
	return &Node{Op: op, Property: property, Value: value}
}

// Eq returns `property == value` node.
func Eq(property string, value any) *Node {
	return compare(OpEq, property, value)
}

// Ne returns `property != value` node.
func Ne(property string, value any) *Node {
	return compare(OpNe, property, value)
}

// Lt returns `property < value` node.
func Lt(property string, value any) *Node {
	return compare(OpLt, property, value)
}

// Le returns `property <= value` node.
func Le(property string, value any) *Node {
	return compare(OpLe, property, value)
}

// Gt returns `property > value` node.
func Gt(property string, value any) *Node {
	return compare(OpGt, property, value)
}

// Ge returns `property >= value` node.
func Ge(property string, value any) *Node {
	return compare(OpGe, property, value)
}

// In returns a membership node.
func In(property string, values ...any) *Node {
	return compare(OpIn, property, values)
}

// And returns a conjunction; it matches everything when empty.
func And(children ...*Node) *Node {
	return &Node{Op: OpAnd, Children: children}
}

// Or returns a disjunction; it matches nothing when empty.
func Or(children ...*Node) *Node {
	return &Node{Op: OpOr, Children: children}
}

// Not returns a negation.
func Not(child *Node) *Node {
	return &Node{Op: OpNot, Children: []*Node{child}}
}

// True returns the explicit unrestricted predicate.
func True() *Node {
	return &Node{Op: OpTrue}
}

// Properties returns all property names referenced by the tree, in order of appearance.
func (n *Node) Properties() []string {
	var res []string

	n.walk(func(c *Node) {
		if c.Op.IsComparison() {
			res = append(res, c.Property)
		}
	})

	return res
}

// walk calls f for n and all its descendants, depth-first.
func (n *Node) walk(f func(*Node)) {
	if n == nil {
		return
	}

	f(n)

	for _, c := range n.Children {
		c.walk(f)
	}
}

// String returns a human-readable representation for logging.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}

	switch {
	case n.Op == OpTrue:
		return "true"
	case n.Op.IsComparison():
		return fmt.Sprintf("%s %s %v", n.Property, n.Op, n.Value)
	case n.Op == OpNot && len(n.Children) == 1:
		return "not " + n.Children[0].String()
	default:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = c.String()
		}

		return "(" + strings.Join(parts, " "+string(n.Op)+" ") + ")"
	}
}

// check interfaces
var (
	_ fmt.Stringer = (*Node)(nil)
)
