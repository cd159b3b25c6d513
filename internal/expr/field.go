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
	"time"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/where"
)

// param is the parameter name of built functions.
const param = "x"

// Field is a typed domain member used to build expressions.
type Field[T any] struct {
	name string
	typ  domain.MemberType
}

// StringField returns a string member.
func StringField(name string) Field[string] {
	return Field[string]{name: name, typ: domain.TypeString}
}

// IntField returns an integer member.
func IntField(name string) Field[int64] {
	return Field[int64]{name: name, typ: domain.TypeInt}
}

// FloatField returns a floating point member.
func FloatField(name string) Field[float64] {
	return Field[float64]{name: name, typ: domain.TypeFloat}
}

// BoolField returns a boolean member.
func BoolField(name string) Field[bool] {
	return Field[bool]{name: name, typ: domain.TypeBool}
}

// TimeField returns a time member.
func TimeField(name string) Field[time.Time] {
	return Field[time.Time]{name: name, typ: domain.TypeTime}
}

// KeyField returns a key member.
func KeyField(name string) Field[meshkey.MeshKey] {
	return Field[meshkey.MeshKey]{name: name, typ: domain.TypeKey}
}

// Name returns the member name.
func (f Field[T]) Name() string {
	return f.name
}

func (f Field[T]) member() *Member {
	return &Member{Name: f.name, Type: f.typ}
}

// Ref returns `x => x.f`.
func (f Field[T]) Ref() *Func {
	return &Func{Param: param, Body: f.member()}
}

// As returns `x => (to)x.f`.
func (f Field[T]) As(to domain.MemberType) *Func {
	return &Func{Param: param, Body: &Convert{Operand: f.member(), To: to}}
}

func (f Field[T]) compare(op where.Op, v any) *Func {
	return &Func{Param: param, Body: &Compare{Op: op, Left: f.member(), Right: &Const{Value: v}}}
}

// Eq returns `x => x.f == v`.
func (f Field[T]) Eq(v T) *Func {
	return f.compare(where.OpEq, v)
}

// Ne returns `x => x.f != v`.
func (f Field[T]) Ne(v T) *Func {
	return f.compare(where.OpNe, v)
}

// Lt returns `x => x.f < v`.
func (f Field[T]) Lt(v T) *Func {
	return f.compare(where.OpLt, v)
}

// Le returns `x => x.f <= v`.
func (f Field[T]) Le(v T) *Func {
	return f.compare(where.OpLe, v)
}

// Gt returns `x => x.f > v`.
func (f Field[T]) Gt(v T) *Func {
	return f.compare(where.OpGt, v)
}

// Ge returns `x => x.f >= v`.
func (f Field[T]) Ge(v T) *Func {
	return f.compare(where.OpGe, v)
}

// In returns `x => x.f in (vs...)`.
func (f Field[T]) In(vs ...T) *Func {
	values := make([]any, len(vs))
	for i, v := range vs {
		values[i] = v
	}

	return f.compare(where.OpIn, values)
}

func logical(op where.Op, fs []*Func) *Func {
	operands := make([]Node, len(fs))
	for i, f := range fs {
		operands[i] = f.Body
	}

	return &Func{Param: param, Body: &Logical{Op: op, Operands: operands}}
}

// And returns a conjunction of function bodies.
func And(fs ...*Func) *Func {
	return logical(where.OpAnd, fs)
}

// Or returns a disjunction of function bodies.
func Or(fs ...*Func) *Func {
	return logical(where.OpOr, fs)
}

// Not returns a negation of the function body.
func Not(f *Func) *Func {
	return logical(where.OpNot, []*Func{f})
}
