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
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/repository"
)

// TimeLayout is a fixed-width RFC 3339 layout used for stored time values,
// so text comparison matches time comparison.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// KeyProperty is the reserved property name referring to object keys in predicates and ordering.
const KeyProperty = repository.KeyColumn

// column is a resolved member (or the key column).
type column struct {
	name   string
	member domain.Member

	// bound is the generic argument of TypeGeneric members.
	bound domain.TypeRef
}

// typ returns the member type.
func (c column) typ() domain.MemberType {
	return c.member.Type
}

// ordered returns true if the column supports ordering comparisons.
func (c column) ordered() bool {
	return c.typ().Scalar()
}

// invalidValue returns ErrorCodeInvalidValue error for the given column.
func invalidValue(c column, v any, format string, a ...any) error {
	return mesherrors.NewWithArgument(
		mesherrors.ErrorCodeInvalidValue,
		fmt.Errorf("member %q: %s", c.name, fmt.Sprintf(format, a...)),
		v,
	)
}

// encodeValue converts a Go value into a query argument for the given column.
//
// Nil is stored as NULL.
func encodeValue(c column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch c.typ() {
	case domain.TypeGeneric:
		return encodeGeneric(c, v)

	case domain.TypeJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, invalidValue(c, v, "%s", err)
		}

		return string(b), nil

	case domain.TypeMap, domain.TypeSet:
		ct, ok := v.(domain.Container)
		if !ok || ct.Kind() != domain.KindOf(c.typ()) {
			return nil, invalidValue(c, v, "expected %s container, got %T", c.typ(), v)
		}

		b, err := domain.MarshalContainer(ct, nil)
		if err != nil {
			return nil, invalidValue(c, v, "%s", err)
		}

		return string(b), nil

	default:
		return encodeScalar(c, c.typ(), v)
	}
}

// encodeGeneric encodes a value of a TypeGeneric member as JSON text.
func encodeGeneric(c column, v any) (any, error) {
	if c.bound.Type.Scalar() {
		s, err := encodeScalar(c, c.bound.Type, v)
		if err != nil {
			return nil, err
		}

		v = s
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, invalidValue(c, v, "%s", err)
	}

	return string(b), nil
}

// encodeScalar converts a Go value into a native query argument.
func encodeScalar(c column, t domain.MemberType, v any) (any, error) {
	switch t {
	case domain.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}

	case domain.TypeInt:
		if i, ok := toInt64(v); ok {
			return i, nil
		}

	case domain.TypeFloat:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}

	case domain.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}

	case domain.TypeTime:
		switch v := v.(type) {
		case time.Time:
			return v.UTC().Format(TimeLayout), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, invalidValue(c, v, "%s", err)
			}

			return t.UTC().Format(TimeLayout), nil
		}

	case domain.TypeKey:
		switch v := v.(type) {
		case meshkey.MeshKey:
			if v.IsZero() {
				return nil, nil
			}

			return v.String(), nil
		case string:
			k, err := meshkey.Parse(v)
			if err != nil {
				return nil, invalidValue(c, v, "%s", err)
			}

			return k.String(), nil
		}
	}

	return nil, invalidValue(c, v, "expected %s, got %T", t, v)
}

// toInt64 converts integer values; floats are accepted only if they are integral.
func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}

		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}

		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}

		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// toFloat64 converts numeric values.
func toFloat64(v any) (float64, bool) {
	switch v := v.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		i, ok := toInt64(v)
		return float64(i), ok
	}
}

// asString returns text representation of a scanned value.
func asString(raw any) (string, bool) {
	switch raw := raw.(type) {
	case string:
		return raw, true
	case []byte:
		return string(raw), true
	default:
		return "", false
	}
}

// decodeValue converts a scanned value into a Go value for the given column.
//
// It returns nil for NULL.
func decodeValue(c column, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch c.typ() {
	case domain.TypeGeneric:
		s, ok := asString(raw)
		if !ok || !gjson.Valid(s) {
			return nil, invalidValue(c, raw, "invalid stored JSON")
		}

		return decodeJSONScalar(c, c.bound.Type, gjson.Parse(s))

	case domain.TypeJSON:
		s, ok := asString(raw)
		if !ok {
			return nil, invalidValue(c, raw, "unexpected stored %T", raw)
		}

		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, invalidValue(c, raw, "%s", err)
		}

		return v, nil

	case domain.TypeMap, domain.TypeSet:
		s, ok := asString(raw)
		if !ok {
			return nil, invalidValue(c, raw, "unexpected stored %T", raw)
		}

		ct, _, err := domain.UnmarshalContainer([]byte(s), domain.KindOf(c.typ()), c.member.Of)
		if err != nil {
			return nil, err
		}

		return ct, nil

	default:
		return decodeScalar(c, c.typ(), raw)
	}
}

// decodeScalar converts a natively stored value.
func decodeScalar(c column, t domain.MemberType, raw any) (any, error) {
	s, isString := asString(raw)

	switch t {
	case domain.TypeString:
		if isString {
			return s, nil
		}

	case domain.TypeInt:
		if isString {
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, invalidValue(c, raw, "%s", err)
			}

			return i, nil
		}

		if i, ok := toInt64(raw); ok {
			return i, nil
		}

	case domain.TypeFloat:
		if isString {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, invalidValue(c, raw, "%s", err)
			}

			return f, nil
		}

		if f, ok := toFloat64(raw); ok {
			return f, nil
		}

	case domain.TypeBool:
		switch {
		case isString:
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, invalidValue(c, raw, "%s", err)
			}

			return b, nil
		default:
			if b, ok := raw.(bool); ok {
				return b, nil
			}

			if i, ok := toInt64(raw); ok {
				return i != 0, nil
			}
		}

	case domain.TypeTime:
		if isString {
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, invalidValue(c, raw, "%s", err)
			}

			return ts.UTC(), nil
		}

	case domain.TypeKey:
		if isString {
			return meshkey.Parse(s)
		}
	}

	return nil, invalidValue(c, raw, "can't decode stored %T as %s", raw, t)
}

// decodeJSONScalar decodes a JSON-encoded generic value using the bound type.
func decodeJSONScalar(c column, t domain.MemberType, r gjson.Result) (any, error) {
	if r.Type == gjson.Null {
		return nil, nil
	}

	switch t {
	case domain.TypeString:
		return r.String(), nil
	case domain.TypeInt:
		return r.Int(), nil
	case domain.TypeFloat:
		return r.Float(), nil
	case domain.TypeBool:
		return r.Bool(), nil
	case domain.TypeTime, domain.TypeKey:
		return decodeScalar(c, t, r.String())
	default:
		return r.Value(), nil
	}
}
