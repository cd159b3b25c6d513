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
	"time"

	"github.com/tidwall/gjson"

	"github.com/meshdb/meshdb/internal/meshkey"
)

// Kind represents a container kind.
type Kind int

// Container kinds.
const (
	// KindPlain is an ordinary domain object without a container.
	KindPlain Kind = iota

	// KindMap is a generic dictionary.
	KindMap

	// KindUniqueSet is a generic set of unique items.
	KindUniqueSet
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindMap:
		return "map"
	case KindUniqueSet:
		return "set"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// containerKinds maps member types to container kinds.
var containerKinds = map[MemberType]Kind{
	TypeMap: KindMap,
	TypeSet: KindUniqueSet,
}

// KindOf returns the container kind of the given member type.
func KindOf(t MemberType) Kind {
	return containerKinds[t]
}

// Container is a generic container with type arguments bound at runtime.
//
// Implementations are [*Map] and [*UniqueSet].
type Container interface {
	Kind() Kind
	Len() int

	// rawEntries returns wire entries.
	rawEntries() []any

	// loadEntry decodes a single wire entry.
	loadEntry(r gjson.Result) error
}

// containerFactory creates a new empty container for the given generic arguments.
type containerFactory func(generics []TypeRef) (Container, error)

// containerFactories is keyed by the closed set of container kinds.
var containerFactories = map[Kind]containerFactory{
	KindPlain: func(generics []TypeRef) (Container, error) {
		if len(generics) != 0 {
			return nil, fmt.Errorf("plain kind takes no generic arguments, got %d", len(generics))
		}

		return nil, nil
	},

	KindMap: func(generics []TypeRef) (Container, error) {
		if len(generics) != 2 {
			return nil, fmt.Errorf("map takes 2 generic arguments, got %d", len(generics))
		}

		return newMapFor(generics[0], generics[1])
	},

	KindUniqueSet: func(generics []TypeRef) (Container, error) {
		if len(generics) != 1 {
			return nil, fmt.Errorf("set takes 1 generic argument, got %d", len(generics))
		}

		return newSetFor(generics[0])
	},
}

// NewContainer returns a new empty container of the given kind
// bound to the given generic arguments.
//
// It returns nil container for KindPlain.
func NewContainer(kind Kind, generics []TypeRef) (Container, error) {
	f, ok := containerFactories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown container kind %s", kind)
	}

	return f(generics)
}

// newSetFor returns a set for the given item type.
func newSetFor(item TypeRef) (Container, error) {
	switch item.Type {
	case TypeString:
		return NewUniqueSet[string](), nil
	case TypeInt:
		return NewUniqueSet[int64](), nil
	case TypeFloat:
		return NewUniqueSet[float64](), nil
	case TypeBool:
		return NewUniqueSet[bool](), nil
	case TypeKey:
		return NewUniqueSet[meshkey.MeshKey](), nil
	default:
		return nil, fmt.Errorf("unsupported set item type %q", item.Type)
	}
}

// newMapFor returns a map for the given key and value types.
func newMapFor(key, value TypeRef) (Container, error) {
	switch key.Type {
	case TypeString:
		return newMapWithValue[string](value)
	case TypeInt:
		return newMapWithValue[int64](value)
	case TypeBool:
		return newMapWithValue[bool](value)
	case TypeKey:
		return newMapWithValue[meshkey.MeshKey](value)
	default:
		return nil, fmt.Errorf("unsupported map key type %q", key.Type)
	}
}

// newMapWithValue returns a map with key type K for the given value type.
func newMapWithValue[K comparable](value TypeRef) (Container, error) {
	switch value.Type {
	case TypeString:
		return NewMap[K, string](), nil
	case TypeInt:
		return NewMap[K, int64](), nil
	case TypeFloat:
		return NewMap[K, float64](), nil
	case TypeBool:
		return NewMap[K, bool](), nil
	case TypeTime:
		return NewMap[K, time.Time](), nil
	case TypeKey:
		return NewMap[K, meshkey.MeshKey](), nil
	case TypeJSON:
		return NewMap[K, any](), nil
	default:
		return nil, fmt.Errorf("unsupported map value type %q", value.Type)
	}
}

// decodeScalar decodes a wire value into the Go type of sample.
func decodeScalar(sample any, r gjson.Result) (any, error) {
	switch sample.(type) {
	case string:
		if r.Type != gjson.String {
			return nil, fmt.Errorf("expected string, got %s", r.Type)
		}

		return r.String(), nil

	case int64:
		if r.Type != gjson.Number {
			return nil, fmt.Errorf("expected number, got %s", r.Type)
		}

		return r.Int(), nil

	case float64:
		if r.Type != gjson.Number {
			return nil, fmt.Errorf("expected number, got %s", r.Type)
		}

		return r.Float(), nil

	case bool:
		if !r.IsBool() {
			return nil, fmt.Errorf("expected bool, got %s", r.Type)
		}

		return r.Bool(), nil

	case meshkey.MeshKey:
		return meshkey.Parse(r.String())

	case time.Time:
		return time.Parse(time.RFC3339Nano, r.String())

	default:
		return r.Value(), nil
	}
}

// decode decodes a wire value into T.
func decode[T any](r gjson.Result) (T, error) {
	var zero T

	v, err := decodeScalar(any(zero), r)
	if err != nil {
		return zero, err
	}

	if v == nil {
		return zero, nil
	}

	return v.(T), nil
}

// UniqueSet is a set of unique items that keeps insertion order.
type UniqueSet[T comparable] struct {
	items []T
	idx   map[T]struct{}
}

// NewUniqueSet returns a new set with the given items.
func NewUniqueSet[T comparable](items ...T) *UniqueSet[T] {
	s := &UniqueSet[T]{
		idx: make(map[T]struct{}, len(items)),
	}

	for _, item := range items {
		s.Add(item)
	}

	return s
}

// Kind implements Container.
func (s *UniqueSet[T]) Kind() Kind {
	return KindUniqueSet
}

// Len implements Container.
func (s *UniqueSet[T]) Len() int {
	return len(s.items)
}

// Add adds an item, returning false if it was already present.
func (s *UniqueSet[T]) Add(item T) bool {
	if _, ok := s.idx[item]; ok {
		return false
	}

	s.idx[item] = struct{}{}
	s.items = append(s.items, item)

	return true
}

// Remove removes an item, returning false if it was not present.
func (s *UniqueSet[T]) Remove(item T) bool {
	if _, ok := s.idx[item]; !ok {
		return false
	}

	delete(s.idx, item)

	for i, v := range s.items {
		if v == item {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}

	return true
}

// Contains returns true if the item is present.
func (s *UniqueSet[T]) Contains(item T) bool {
	_, ok := s.idx[item]
	return ok
}

// Items returns a copy of items in insertion order.
func (s *UniqueSet[T]) Items() []T {
	res := make([]T, len(s.items))
	copy(res, s.items)

	return res
}

// rawEntries implements Container.
func (s *UniqueSet[T]) rawEntries() []any {
	res := make([]any, len(s.items))
	for i, v := range s.items {
		res[i] = v
	}

	return res
}

// loadEntry implements Container.
func (s *UniqueSet[T]) loadEntry(r gjson.Result) error {
	v, err := decode[T](r)
	if err != nil {
		return err
	}

	s.Add(v)

	return nil
}

// Map is a dictionary that keeps insertion order.
type Map[K comparable, V any] struct {
	keys []K
	m    map[K]V
}

// NewMap returns a new empty map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		m: map[K]V{},
	}
}

// Kind implements Container.
func (m *Map[K, V]) Kind() Kind {
	return KindMap
}

// Len implements Container.
func (m *Map[K, V]) Len() int {
	return len(m.keys)
}

// Set sets the value for the given key.
func (m *Map[K, V]) Set(k K, v V) {
	if _, ok := m.m[k]; !ok {
		m.keys = append(m.keys, k)
	}

	m.m[k] = v
}

// Get returns the value for the given key.
func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := m.m[k]
	return v, ok
}

// Delete removes the given key, returning false if it was not present.
func (m *Map[K, V]) Delete(k K) bool {
	if _, ok := m.m[k]; !ok {
		return false
	}

	delete(m.m, k)

	for i, key := range m.keys {
		if key == k {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}

	return true
}

// Keys returns a copy of keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	res := make([]K, len(m.keys))
	copy(res, m.keys)

	return res
}

// rawEntries implements Container.
func (m *Map[K, V]) rawEntries() []any {
	res := make([]any, len(m.keys))
	for i, k := range m.keys {
		res[i] = []any{k, m.m[k]}
	}

	return res
}

// loadEntry implements Container.
func (m *Map[K, V]) loadEntry(r gjson.Result) error {
	pair := r.Array()
	if !r.IsArray() || len(pair) != 2 {
		return fmt.Errorf("expected [key, value] pair, got %s", r.Raw)
	}

	k, err := decode[K](pair[0])
	if err != nil {
		return err
	}

	v, err := decode[V](pair[1])
	if err != nil {
		return err
	}

	m.Set(k, v)

	return nil
}

// check interfaces
var (
	_ Container = (*UniqueSet[string])(nil)
	_ Container = (*Map[string, any])(nil)
)
