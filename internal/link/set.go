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

package link

import (
	"context"

	"github.com/meshdb/meshdb/internal/meshkey"
)

// Set is a unique set of item keys owned by a set key.
//
// Adding items to a set links them; it never embeds them.
type Set struct {
	s     *Service
	actor meshkey.MeshKey
	key   meshkey.MeshKey
}

// Set returns a unique set owned by the given key.
func (s *Service) Set(actor, key meshkey.MeshKey) *Set {
	return &Set{
		s:     s,
		actor: actor,
		key:   key,
	}
}

// Key returns the owner key.
func (set *Set) Key() meshkey.MeshKey {
	return set.key
}

// Add adds items, returning the number of items that were not present.
func (set *Set) Add(ctx context.Context, items ...meshkey.MeshKey) (int64, error) {
	return set.s.Link(ctx, set.actor, set.key, items...)
}

// Remove removes items, returning the number of items that were present.
func (set *Set) Remove(ctx context.Context, items ...meshkey.MeshKey) (int64, error) {
	return set.s.Unlink(ctx, set.actor, set.key, items...)
}

// Contains returns true if the item is present.
func (set *Set) Contains(ctx context.Context, item meshkey.MeshKey) (bool, error) {
	return set.s.IsLinked(ctx, set.actor, set.key, item)
}

// Items returns all items.
func (set *Set) Items(ctx context.Context) ([]meshkey.MeshKey, error) {
	return set.s.Items(ctx, set.actor, set.key)
}

// Len returns the number of items.
func (set *Set) Len(ctx context.Context) (int64, error) {
	return set.s.Count(ctx, set.actor, set.key)
}
