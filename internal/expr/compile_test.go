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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/where"
)

func TestCompileMember(t *testing.T) {
	t.Parallel()

	age := IntField("age")

	m, err := CompileMember(age.Ref())
	require.NoError(t, err)
	assert.Equal(t, &Member{Name: "age", Type: domain.TypeInt}, m)

	m, err = CompileMember(age.As(domain.TypeFloat))
	require.NoError(t, err)
	assert.Equal(t, &Member{Name: "age", Type: domain.TypeInt}, m)
}

func TestCompileMemberErrors(t *testing.T) {
	t.Parallel()

	for name, f := range map[string]*Func{
		"Nil":          nil,
		"Const":        {Param: "x", Body: &Const{Value: 42}},
		"Comparison":   IntField("age").Eq(42),
		"ConvertConst": {Param: "x", Body: &Convert{Operand: &Const{Value: 1}, To: domain.TypeFloat}},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			m, err := CompileMember(f)
			assert.Nil(t, m)
			require.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeUnsupportedExpressionShape), "%v", err)
			assert.Contains(t, err.Error(), "expression must resolve to a plain member reference (e.g. x => x.Field)")
		})
	}
}

func TestLocatorPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		_, _ = templates[memberViaCoercion].run(IntField("age").Ref())
	})

	assert.Panics(t, func() {
		_, _ = templates[directMember].run(&Member{Name: "age"})
	})
}

func TestCompileComparison(t *testing.T) {
	t.Parallel()

	f := IntField("age").Ge(18)

	body, err := CompileComparison(f)
	require.NoError(t, err)
	assert.Same(t, f.Body, body)

	_, err = CompileComparison(IntField("age").Ref())
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeUnsupportedExpressionShape))

	body, err = CompileComparison(BoolField("active").Ref())
	require.NoError(t, err)
	assert.IsType(t, new(Member), body)
}

func TestWhere(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, tc := range map[string]struct {
		f        *Func
		expected *where.Node
	}{
		"Eq": {
			f:        StringField("name").Eq("Ada"),
			expected: where.Eq("name", "Ada"),
		},
		"In": {
			f:        IntField("age").In(1, 2),
			expected: where.In("age", int64(1), int64(2)),
		},
		"Logical": {
			f: And(
				IntField("age").Gt(18),
				Or(TimeField("born").Lt(ts), Not(BoolField("active").Ref())),
			),
			expected: where.And(
				where.Gt("age", int64(18)),
				where.Or(where.Lt("born", ts), where.Not(where.Eq("active", true))),
			),
		},
		"Reversed": {
			f: &Func{Param: "x", Body: &Compare{
				Op:    where.OpLt,
				Left:  &Const{Value: int64(5)},
				Right: &Member{Name: "age", Type: domain.TypeInt},
			}},
			expected: where.Gt("age", int64(5)),
		},
		"Coercion": {
			f: &Func{Param: "x", Body: &Compare{
				Op:    where.OpLe,
				Left:  &Convert{Operand: &Member{Name: "age", Type: domain.TypeInt}, To: domain.TypeFloat},
				Right: &Const{Value: 2.5},
			}},
			expected: where.Le("age", 2.5),
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			actual, err := Where(tc.f)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestWhereErrors(t *testing.T) {
	t.Parallel()

	for name, f := range map[string]*Func{
		"MemberVsMember": {Param: "x", Body: &Compare{
			Op:    where.OpEq,
			Left:  &Member{Name: "a", Type: domain.TypeInt},
			Right: &Member{Name: "b", Type: domain.TypeInt},
		}},
		"ConstVsConst": {Param: "x", Body: &Compare{
			Op:    where.OpEq,
			Left:  &Const{Value: 1},
			Right: &Const{Value: 1},
		}},
		"BadOp": {Param: "x", Body: &Compare{
			Op:    where.OpAnd,
			Left:  &Member{Name: "a", Type: domain.TypeInt},
			Right: &Const{Value: 1},
		}},
		"NotArity":      {Param: "x", Body: &Logical{Op: where.OpNot}},
		"NonBoolMember": Not(IntField("age").Ref()),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := Where(f)
			assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeUnsupportedExpressionShape), "%v", err)
		})
	}
}
