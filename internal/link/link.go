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

// Package link provides link services that model many-to-many relations between two domains.
package link

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/store"
	"github.com/meshdb/meshdb/internal/where"
)

// Service links set keys to item keys through a link domain's value store.
//
// Each (set, item) pair is stored at most once.
type Service struct {
	pair domain.LinkedDomains
	vs   store.DomainValueStore
	l    *zap.Logger
}

// New returns a new link service for the given pair, backed by the link domain's value store.
func New(pair domain.LinkedDomains, vs store.DomainValueStore, l *zap.Logger) *Service {
	return &Service{
		pair: pair.Canonical(),
		vs:   vs,
		l:    l.Named("link").With(zap.Stringer("pair", pair)),
	}
}

// Pair returns the canonical domain pair.
func (s *Service) Pair() domain.LinkedDomains {
	return s.pair
}

// Domain returns the link domain.
func (s *Service) Domain() *domain.MeshDomain {
	return s.vs.Domain()
}

// RowKey returns the deterministic key of the link record for the given pair.
func RowKey(set, item meshkey.MeshKey) meshkey.MeshKey {
	return meshkey.Derive(set, item.String())
}

// checkKeys returns an error if any key is null.
func checkKeys(keys ...meshkey.MeshKey) error {
	for _, k := range keys {
		if k.IsNull() {
			return mesherrors.NewWithArgument(mesherrors.ErrorCodeInvalidValue, errors.New("null key can't be linked"), k.String())
		}
	}

	return nil
}

// Link associates set with each item.
//
// Already linked pairs are skipped. It returns the number of new links.
func (s *Service) Link(ctx context.Context, actor, set meshkey.MeshKey, items ...meshkey.MeshKey) (int64, error) {
	if err := checkKeys(append([]meshkey.MeshKey{set}, items...)...); err != nil {
		return 0, err
	}

	seen := make(map[meshkey.MeshKey]struct{}, len(items))
	objs := make([]*domain.Object, 0, len(items))

	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}

		objs = append(objs, &domain.Object{
			Key: RowKey(set, item),
			Values: map[string]any{
				domain.LinkSetMember:  set,
				domain.LinkItemMember: item,
			},
		})
	}

	n, err := s.vs.InsertUnique(ctx, actor, objs...)
	if err != nil {
		return 0, err
	}

	s.l.Debug("Linked", zap.Stringer("set", set), zap.Int("items", len(objs)), zap.Int64("new", n))

	return n, nil
}

// Unlink removes links between set and each item.
//
// Unlinking a pair that is not linked is a no-op.
func (s *Service) Unlink(ctx context.Context, actor, set meshkey.MeshKey, items ...meshkey.MeshKey) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	values := make([]any, len(items))
	for i, item := range items {
		values[i] = item
	}

	w := where.And(where.Eq(domain.LinkSetMember, set), where.In(domain.LinkItemMember, values...))

	return s.vs.DeleteValues(ctx, actor, w)
}

// Items returns items linked to the given set.
func (s *Service) Items(ctx context.Context, actor, set meshkey.MeshKey) ([]meshkey.MeshKey, error) {
	return s.traverse(ctx, actor, domain.LinkSetMember, domain.LinkItemMember, set)
}

// Sets returns sets the given item is linked to.
func (s *Service) Sets(ctx context.Context, actor, item meshkey.MeshKey) ([]meshkey.MeshKey, error) {
	return s.traverse(ctx, actor, domain.LinkItemMember, domain.LinkSetMember, item)
}

// traverse returns values of the to member for records where from member equals k.
func (s *Service) traverse(ctx context.Context, actor meshkey.MeshKey, from, to string, k meshkey.MeshKey) ([]meshkey.MeshKey, error) {
	req := &store.ReadRequest{
		Members: []string{to},
		OrderBy: []store.Order{{Member: to}},
	}

	objs, err := s.vs.QueryValues(ctx, actor, where.Eq(from, k), req)
	if err != nil {
		return nil, err
	}

	res := make([]meshkey.MeshKey, 0, len(objs))

	for _, o := range objs {
		if k, ok := o.Values[to].(meshkey.MeshKey); ok {
			res = append(res, k)
		}
	}

	return res, nil
}

// Count returns the number of items linked to the given set.
func (s *Service) Count(ctx context.Context, actor, set meshkey.MeshKey) (int64, error) {
	return s.vs.QueryCount(ctx, actor, where.Eq(domain.LinkSetMember, set))
}

// IsLinked returns true if set and item are linked.
func (s *Service) IsLinked(ctx context.Context, actor, set, item meshkey.MeshKey) (bool, error) {
	n, err := s.vs.QueryCount(ctx, actor, where.Eq(store.KeyProperty, RowKey(set, item)))
	if err != nil {
		return false, err
	}

	return n > 0, nil
}
