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

package store

import (
	"fmt"
	"strings"

	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/repository"
	"github.com/meshdb/meshdb/internal/where"
)

// comparisonOps maps comparison operators to SQL.
var comparisonOps = map[where.Op]string{
	where.OpEq: "=",
	where.OpNe: "<>",
	where.OpLt: "<",
	where.OpLe: "<=",
	where.OpGt: ">",
	where.OpGe: ">=",
}

// builder accumulates SQL text and ordered arguments of a single statement.
type builder struct {
	d    repository.Dialect
	sb   strings.Builder
	args []any
}

// newBuilder returns a new builder for the given dialect.
func newBuilder(d repository.Dialect) *builder {
	return &builder{d: d}
}

// write appends formatted text.
func (b *builder) write(format string, a ...any) {
	fmt.Fprintf(&b.sb, format, a...)
}

// arg appends an argument and returns its placeholder.
func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

// String returns SQL text.
func (b *builder) String() string {
	return b.sb.String()
}

// writeWhere appends WHERE clause for the given predicate.
//
// Nil predicate matches everything.
func (s *Store) writeWhere(b *builder, w *where.Node) error {
	if w == nil {
		return nil
	}

	cond, err := s.predicate(b, w)
	if err != nil {
		return err
	}

	b.write(" WHERE %s", cond)

	return nil
}

// predicate translates the predicate tree, appending arguments to b.
func (s *Store) predicate(b *builder, n *where.Node) (string, error) {
	if n == nil {
		return "", mesherrors.New(mesherrors.ErrorCodeInvalidValue, "nil predicate node")
	}

	switch n.Op {
	case where.OpTrue:
		return "1 = 1", nil

	case where.OpAnd, where.OpOr:
		if len(n.Children) == 0 {
			if n.Op == where.OpAnd {
				return "1 = 1", nil
			}

			return "1 = 0", nil
		}

		parts := make([]string, len(n.Children))

		for i, c := range n.Children {
			var err error
			if parts[i], err = s.predicate(b, c); err != nil {
				return "", err
			}
		}

		sep := " AND "
		if n.Op == where.OpOr {
			sep = " OR "
		}

		return "(" + strings.Join(parts, sep) + ")", nil

	case where.OpNot:
		if len(n.Children) != 1 {
			return "", mesherrors.Errorf(
				mesherrors.ErrorCodeInvalidValue, "%s takes exactly one child, got %d", n.Op, len(n.Children),
			)
		}

		cond, err := s.predicate(b, n.Children[0])
		if err != nil {
			return "", err
		}

		return "NOT (" + cond + ")", nil

	case where.OpIn:
		return s.in(b, n)

	case where.OpEq, where.OpNe, where.OpLt, where.OpLe, where.OpGt, where.OpGe:
		return s.comparison(b, n)

	default:
		return "", mesherrors.NewWithArgument(
			mesherrors.ErrorCodeInvalidValue,
			fmt.Errorf("unknown predicate operator %q", n.Op),
			string(n.Op),
		)
	}
}

// comparison translates a single comparison node.
func (s *Store) comparison(b *builder, n *where.Node) (string, error) {
	c, err := s.resolve(n.Property)
	if err != nil {
		return "", err
	}

	col := b.d.Quote(c.name)

	if n.Value == nil {
		switch n.Op {
		case where.OpEq:
			return col + " IS NULL", nil
		case where.OpNe:
			return col + " IS NOT NULL", nil
		default:
			return "", invalidValue(c, nil, "can't compare with null using %s", n.Op)
		}
	}

	if n.Op != where.OpEq && n.Op != where.OpNe && !c.ordered() {
		return "", invalidValue(c, n.Value, "%s does not support %s", c.typ(), n.Op)
	}

	v, err := encodeValue(c, n.Value)
	if err != nil {
		return "", err
	}

	return col + " " + comparisonOps[n.Op] + " " + b.arg(v), nil
}

// in translates a membership node.
func (s *Store) in(b *builder, n *where.Node) (string, error) {
	c, err := s.resolve(n.Property)
	if err != nil {
		return "", err
	}

	values, ok := n.Value.([]any)
	if !ok {
		return "", invalidValue(c, n.Value, "%s expects a list, got %T", n.Op, n.Value)
	}

	if len(values) == 0 {
		return "1 = 0", nil
	}

	placeholders := make([]string, len(values))

	for i, v := range values {
		if v == nil {
			return "", invalidValue(c, v, "%s list can't contain null", n.Op)
		}

		enc, err := encodeValue(c, v)
		if err != nil {
			return "", err
		}

		placeholders[i] = b.arg(enc)
	}

	return b.d.Quote(c.name) + " IN (" + strings.Join(placeholders, ", ") + ")", nil
}

// quoteColumns returns quoted comma-separated column names.
func quoteColumns(d repository.Dialect, names []string) string {
	res := make([]string, len(names))
	for i, n := range names {
		res[i] = d.Quote(n)
	}

	return strings.Join(res, ", ")
}
