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

package expr

import (
	"fmt"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/where"
)

// Guidance messages of UnsupportedExpressionShape errors.
const (
	memberGuidance     = "expression must resolve to a plain member reference (e.g. x => x.Field)"
	comparisonGuidance = "expression must be a boolean comparison (e.g. x => x.Field == value)"
)

// operatorKind represents the kind of a path template operator.
type operatorKind int

const (
	// locator descends into a required child node.
	locator operatorKind = iota

	// retriever is terminal; it extracts the result from the current node.
	retriever
)

// operator is a single step of a path template.
type operator struct {
	name     string
	kind     operatorKind
	locate   func(Node) Node
	retrieve func(Node) (any, error)
}

// pathTemplate is an ordered list of operators ending with a retriever.
type pathTemplate struct {
	name string
	ops  []operator
}

// Template names.
const (
	directMember      = "direct-member"
	memberViaCoercion = "member-via-coercion"
	comparison        = "comparison"
)

// Operators.
var (
	funcBody = operator{
		name: "func-body",
		kind: locator,
		locate: func(n Node) Node {
			return mustBe[*Func]("func-body", n).Body
		},
	}

	convertOperand = operator{
		name: "convert-operand",
		kind: locator,
		locate: func(n Node) Node {
			return mustBe[*Convert]("convert-operand", n).Operand
		},
	}

	memberRetriever = operator{
		name: "member",
		kind: retriever,
		retrieve: func(n Node) (any, error) {
			m, ok := n.(*Member)
			if !ok {
				return nil, unsupported(n, memberGuidance)
			}

			return m, nil
		},
	}

	bodyRetriever = operator{
		name: "body",
		kind: retriever,
		retrieve: func(n Node) (any, error) {
			return mustBe[*Func]("body", n).Body, nil
		},
	}
)

// templates is built once and never modified.
var templates = map[string]pathTemplate{
	directMember: {
		name: directMember,
		ops:  []operator{funcBody, memberRetriever},
	},
	memberViaCoercion: {
		name: memberViaCoercion,
		ops:  []operator{funcBody, convertOperand, memberRetriever},
	},
	comparison: {
		name: comparison,
		ops:  []operator{bodyRetriever},
	},
}

// mustBe returns n as T, or panics.
//
// Locators are only applied to nodes selected by the template, so a mismatch is a bug.
func mustBe[T Node](op string, n Node) T {
	v, ok := n.(T)
	if !ok {
		panic(fmt.Sprintf("expr: %s operator applied to %T", op, n))
	}

	return v
}

// run walks the template starting at root.
func (t pathTemplate) run(root Node) (any, error) {
	n := root

	for _, op := range t.ops {
		switch op.kind {
		case locator:
			n = op.locate(n)
		case retriever:
			return op.retrieve(n)
		default:
			panic(fmt.Sprintf("expr: unknown operator kind %d", op.kind))
		}
	}

	panic(fmt.Sprintf("expr: template %q has no retriever", t.name))
}

// unsupported returns UnsupportedExpressionShape error for the given node.
func unsupported(n Node, guidance string) error {
	var s string
	if n != nil {
		s = n.String()
	}

	return mesherrors.NewWithArgument(
		mesherrors.ErrorCodeUnsupportedExpressionShape,
		fmt.Errorf("unsupported expression %q: %s", s, guidance),
		s,
	)
}

// CompileMember returns the member referenced by `x => x.Field` or `x => (T)x.Field`.
func CompileMember(f *Func) (*Member, error) {
	if f == nil || f.Body == nil {
		return nil, unsupported(nil, memberGuidance)
	}

	name := directMember
	if _, ok := f.Body.(*Convert); ok {
		name = memberViaCoercion
	}

	v, err := templates[name].run(f)
	if err != nil {
		return nil, err
	}

	return v.(*Member), nil
}

// CompileComparison returns the boolean-valued body of the function, discarding the wrapper.
func CompileComparison(f *Func) (Node, error) {
	if f == nil || f.Body == nil {
		return nil, unsupported(nil, comparisonGuidance)
	}

	v, err := templates[comparison].run(f)
	if err != nil {
		return nil, err
	}

	body := v.(Node)

	switch body := body.(type) {
	case *Compare, *Logical:
		return body, nil
	case *Member:
		if body.Type == domain.TypeBool {
			return body, nil
		}
	}

	return nil, unsupported(body, comparisonGuidance)
}

// Where compiles a comparison function into a predicate tree.
//
// Reversed operands (`5 < x.Field`) are flipped;
// comparisons of two members or two constants are not supported.
func Where(f *Func) (*where.Node, error) {
	body, err := CompileComparison(f)
	if err != nil {
		return nil, err
	}

	return lower(body)
}

// lower converts a boolean-valued expression into a predicate tree.
func lower(n Node) (*where.Node, error) {
	switch n := n.(type) {
	case *Compare:
		return lowerCompare(n)

	case *Logical:
		children := make([]*where.Node, len(n.Operands))

		for i, o := range n.Operands {
			var err error
			if children[i], err = lower(o); err != nil {
				return nil, err
			}
		}

		switch n.Op {
		case where.OpAnd:
			return where.And(children...), nil
		case where.OpOr:
			return where.Or(children...), nil
		case where.OpNot:
			if len(children) == 1 {
				return where.Not(children[0]), nil
			}
		}

	case *Member:
		if n.Type == domain.TypeBool {
			return where.Eq(n.Name, true), nil
		}
	}

	return nil, unsupported(n, comparisonGuidance)
}

// lowerCompare converts a single comparison.
func lowerCompare(c *Compare) (*where.Node, error) {
	if !c.Op.IsComparison() {
		return nil, unsupported(c, comparisonGuidance)
	}

	lm, lok := memberOf(c.Left)
	rm, rok := memberOf(c.Right)
	lc, lcok := c.Left.(*Const)
	rc, rcok := c.Right.(*Const)

	switch {
	case lok && rcok:
		return &where.Node{Op: c.Op, Property: lm.Name, Value: rc.Value}, nil
	case lcok && rok && c.Op != where.OpIn:
		return &where.Node{Op: c.Op.Flip(), Property: rm.Name, Value: lc.Value}, nil
	default:
		return nil, unsupported(c, "comparison must be between a member and a constant (e.g. x => x.Field == value)")
	}
}

// memberOf returns the member behind any number of coercions.
func memberOf(n Node) (*Member, bool) {
	for {
		switch v := n.(type) {
		case *Member:
			return v, true
		case *Convert:
			n = v.Operand
		default:
			return nil, false
		}
	}
}
