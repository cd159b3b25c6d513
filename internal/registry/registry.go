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

// Package registry provides the domain service: domain schema management
// and memoized value and link services.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/AlekSi/pointer"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/singleflight"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/link"
	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/repository"
	"github.com/meshdb/meshdb/internal/store"
	"github.com/meshdb/meshdb/internal/util/lazyerrors"
	"github.com/meshdb/meshdb/internal/util/observability"
	"github.com/meshdb/meshdb/internal/where"
)

// Parts of Prometheus metric names.
const (
	namespace = "meshdb"
	subsystem = "registry"
)

// Service manages domains and caches exactly one value service per domain
// and one link service per unordered domain pair.
//
// It is safe for concurrent use.
//
//nolint:vet // for readability
type Service struct {
	repo    repository.Repository
	catalog *store.Store
	l       *zap.Logger

	// actor of catalog operations
	actor meshkey.MeshKey

	rw     sync.RWMutex
	values map[meshkey.MeshKey]store.DomainValueStore
	links  map[domain.LinkedDomains]*link.Service

	// eviction counters by domain key; protected by rw
	gens map[meshkey.MeshKey]uint64

	sf singleflight.Group

	constructed *prometheus.CounterVec
}

// New creates a new domain service; it provisions catalog storage.
func New(ctx context.Context, repo repository.Repository, l *zap.Logger) (*Service, error) {
	l = l.Named("registry")

	catalog, err := store.New(ctx, repo, catalogDomain(), nil, l)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return &Service{
		repo:    repo,
		catalog: catalog,
		l:       l,
		actor:   catalogKey,
		values:  map[meshkey.MeshKey]store.DomainValueStore{},
		links:   map[domain.LinkedDomains]*link.Service{},
		gens:    map[meshkey.MeshKey]uint64{},
		constructed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "constructed_total",
				Help:      "The total number of constructed services.",
			},
			[]string{"kind"},
		),
	}, nil
}

// CreateDomain persists a new domain and provisions its storage.
//
// Creating an existing domain is a no-op.
func (s *Service) CreateDomain(ctx context.Context, d *domain.MeshDomain) error {
	defer observability.FuncCall(ctx)()

	if err := validate(d); err != nil {
		return err
	}

	existing, err := s.Domain(ctx, d.Key)
	if err != nil {
		return err
	}

	if existing != nil {
		return nil
	}

	if _, err = s.repo.CreateStorage(ctx, s.repo.Table(d)); err != nil {
		return lazyerrors.Error(err)
	}

	values, err := catalogValues(d)
	if err != nil {
		return err
	}

	obj := &domain.Object{Key: d.Key, Values: values}

	if err = s.catalog.InsertValues(ctx, s.actor, obj); err != nil {
		// concurrent CreateDomain call won
		if s.repo.Dialect().IsUniqueViolation(err) {
			return nil
		}

		return lazyerrors.Error(err)
	}

	s.l.Info("Domain created", zap.Stringer("domain", d))

	return nil
}

// UpdateDomain creates a domain or updates its metadata, adding storage columns for new members.
//
// The cached value service is evicted, so the next one sees the updated descriptor.
func (s *Service) UpdateDomain(ctx context.Context, d *domain.MeshDomain) error {
	defer observability.FuncCall(ctx)()

	if err := validate(d); err != nil {
		return err
	}

	existing, err := s.Domain(ctx, d.Key)
	if err != nil {
		return err
	}

	if existing == nil {
		return s.CreateDomain(ctx, d)
	}

	if existing.IsLink() != d.IsLink() {
		return mesherrors.NewWithArgument(
			mesherrors.ErrorCodeInvalidDomain,
			fmt.Errorf("domain %s can't change its kind", d),
			d.Name,
		)
	}

	for _, m := range d.Members {
		em, ok := existing.Member(m.Name)
		if !ok || sameType(em, m) {
			continue
		}

		return mesherrors.NewWithArgument(
			mesherrors.ErrorCodeInvalidDomain,
			fmt.Errorf("member %q of domain %s can't change its type", m.Name, d),
			d.Name,
		)
	}

	values, err := catalogValues(d)
	if err != nil {
		return err
	}

	if _, err = s.catalog.UpdateValues(ctx, s.actor, &domain.Updater{Key: d.Key, Values: values}); err != nil {
		return lazyerrors.Error(err)
	}

	if err = s.repo.EnsureColumns(ctx, s.repo.Table(d)); err != nil {
		return lazyerrors.Error(err)
	}

	s.evict(d)

	s.l.Info("Domain updated", zap.Stringer("domain", d))

	return nil
}

// DeleteDomain removes the domain, its storage and cached services.
//
// Link domains referencing the deleted domain are deleted too.
func (s *Service) DeleteDomain(ctx context.Context, key meshkey.MeshKey) error {
	defer observability.FuncCall(ctx)()

	d, err := s.Domain(ctx, key)
	if err != nil {
		return err
	}

	if d == nil {
		return mesherrors.NewWithArgument(
			mesherrors.ErrorCodeDomainDoesNotExist,
			fmt.Errorf("domain %s does not exist", key),
			key.String(),
		)
	}

	toDelete := []*domain.MeshDomain{d}

	if !d.IsLink() {
		links, err := s.LinkDomains(ctx)
		if err != nil {
			return err
		}

		for _, ld := range links {
			if ld.Link.Contains(key) {
				toDelete = append(toDelete, ld)
			}
		}
	}

	for _, dd := range toDelete {
		s.evict(dd)

		if err = s.repo.DropStorage(ctx, s.repo.Table(dd)); err != nil {
			return lazyerrors.Error(err)
		}

		if _, err = s.catalog.DeleteValues(ctx, s.actor, where.Eq(store.KeyProperty, dd.Key)); err != nil {
			return lazyerrors.Error(err)
		}

		// drop services constructed while storage was being dropped
		s.evict(dd)

		s.l.Info("Domain deleted", zap.Stringer("domain", dd))
	}

	return nil
}

// evict removes cached services of the domain.
//
// Services being constructed for the domain at that time are not cached.
func (s *Service) evict(d *domain.MeshDomain) {
	s.rw.Lock()
	defer s.rw.Unlock()

	s.gens[d.Key]++
	delete(s.values, d.Key)

	if d.Link != nil {
		delete(s.links, d.Link.Canonical())
	}
}

// validate checks the descriptor of a user domain.
func validate(d *domain.MeshDomain) error {
	if err := d.Validate(); err != nil {
		return err
	}

	if d.Key == catalogKey {
		return mesherrors.NewWithArgument(
			mesherrors.ErrorCodeInvalidDomain,
			fmt.Errorf("domain key %s is reserved", d.Key),
			d.Name,
		)
	}

	return nil
}

// sameType returns true if both members have the same type and generic arguments.
func sameType(a, b domain.Member) bool {
	return a.Type == b.Type && a.Param == b.Param && domain.FormatGenerics(a.Of) == domain.FormatGenerics(b.Of)
}

// Domain returns the domain with the given key, or nil.
func (s *Service) Domain(ctx context.Context, key meshkey.MeshKey) (*domain.MeshDomain, error) {
	return s.first(ctx, where.Eq(store.KeyProperty, key))
}

// DomainByName returns the first domain with the given friendly name, or nil.
func (s *Service) DomainByName(ctx context.Context, name string) (*domain.MeshDomain, error) {
	return s.first(ctx, where.Eq(memberName, name))
}

// first returns the first catalog domain matching the predicate, or nil.
func (s *Service) first(ctx context.Context, w *where.Node) (*domain.MeshDomain, error) {
	req := &store.ReadRequest{
		OrderBy: []store.Order{{Member: store.KeyProperty}},
		Limit:   pointer.ToInt64(1),
	}

	objs, err := s.catalog.QueryValues(ctx, s.actor, w, req)
	if err != nil {
		return nil, err
	}

	if len(objs) == 0 {
		return nil, nil
	}

	return fromCatalog(objs[0])
}

// ValueDomains returns all value domains ordered by name.
func (s *Service) ValueDomains(ctx context.Context) ([]*domain.MeshDomain, error) {
	return s.list(ctx, kindValue)
}

// LinkDomains returns all link domains ordered by name.
func (s *Service) LinkDomains(ctx context.Context) ([]*domain.MeshDomain, error) {
	return s.list(ctx, kindLink)
}

// list returns catalog domains of the given kind.
func (s *Service) list(ctx context.Context, kind string) ([]*domain.MeshDomain, error) {
	req := &store.ReadRequest{
		OrderBy: []store.Order{{Member: memberName}, {Member: store.KeyProperty}},
	}

	objs, err := s.catalog.QueryValues(ctx, s.actor, where.Eq(memberKind, kind), req)
	if err != nil {
		return nil, err
	}

	res := make([]*domain.MeshDomain, len(objs))

	for i, obj := range objs {
		if res[i], err = fromCatalog(obj); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// ValueService returns the value service of the domain.
//
// The first call for the domain creates it (if needed) and provisions storage;
// concurrent first callers wait for it and all get the same instance.
// The service always uses the stored descriptor, not the given one.
func (s *Service) ValueService(ctx context.Context, d *domain.MeshDomain) (store.DomainValueStore, error) {
	s.rw.RLock()
	vs, ok := s.values[d.Key]
	s.rw.RUnlock()

	if ok {
		return vs, nil
	}

	v, err, _ := s.sf.Do("value/"+d.Key.String(), func() (any, error) {
		s.rw.RLock()
		vs, ok := s.values[d.Key]
		gen := s.gens[d.Key]
		s.rw.RUnlock()

		if ok {
			return vs, nil
		}

		if err := s.CreateDomain(ctx, d); err != nil {
			return nil, err
		}

		cur, err := s.Domain(ctx, d.Key)
		if err != nil {
			return nil, err
		}

		if cur == nil {
			return nil, mesherrors.NewWithArgument(
				mesherrors.ErrorCodeDomainDoesNotExist,
				fmt.Errorf("domain %s was deleted", d),
				d.Key.String(),
			)
		}

		vs, err = store.New(ctx, s.repo, cur, nil, s.l)
		if err != nil {
			return nil, err
		}

		s.constructed.WithLabelValues(kindValue).Inc()

		s.rw.Lock()
		defer s.rw.Unlock()

		if s.gens[d.Key] != gen {
			s.l.Debug("Domain evicted during construction, not caching", zap.Stringer("domain", cur))
			return vs, nil
		}

		s.values[d.Key] = vs

		return vs, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(store.DomainValueStore), nil
}

// LinkService returns the link service of the unordered domain pair.
//
// The first call for the pair derives, persists and provisions the link domain;
// concurrent first callers wait for it and all get the same instance.
func (s *Service) LinkService(ctx context.Context, pair domain.LinkedDomains) (*link.Service, error) {
	pair = pair.Canonical()

	s.rw.RLock()
	ls, ok := s.links[pair]
	s.rw.RUnlock()

	if ok {
		return ls, nil
	}

	v, err, _ := s.sf.Do("link/"+pair.Key().String(), func() (any, error) {
		s.rw.RLock()
		ls, ok := s.links[pair]
		gen := s.gens[pair.Key()]
		s.rw.RUnlock()

		if ok {
			return ls, nil
		}

		members := make([]*domain.MeshDomain, 2)

		for i, k := range []meshkey.MeshKey{pair.A, pair.B} {
			d, err := s.Domain(ctx, k)
			if err != nil {
				return nil, err
			}

			if d == nil {
				return nil, mesherrors.NewWithArgument(
					mesherrors.ErrorCodeDomainDoesNotExist,
					fmt.Errorf("domain %s does not exist", k),
					k.String(),
				)
			}

			members[i] = d
		}

		d, err := domain.NewLinkDomain(pair, members[0], members[1])
		if err != nil {
			return nil, err
		}

		if err = s.CreateDomain(ctx, d); err != nil {
			return nil, err
		}

		vs, err := store.New(ctx, s.repo, d, s.repo.LinkTable(pair, d), s.l)
		if err != nil {
			return nil, err
		}

		ls = link.New(pair, vs, s.l)

		s.constructed.WithLabelValues(kindLink).Inc()

		s.rw.Lock()
		defer s.rw.Unlock()

		if s.gens[pair.Key()] != gen {
			s.l.Debug("Link domain evicted during construction, not caching", zap.Stringer("domain", d))
			return ls, nil
		}

		s.links[pair] = ls

		return ls, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*link.Service), nil
}

// CachedDomains returns keys of domains with cached value services.
func (s *Service) CachedDomains() []meshkey.MeshKey {
	s.rw.RLock()
	defer s.rw.RUnlock()

	return maps.Keys(s.values)
}

// Describe implements prometheus.Collector.
func (s *Service) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(s, ch)
}

// Collect implements prometheus.Collector.
func (s *Service) Collect(ch chan<- prometheus.Metric) {
	s.rw.RLock()
	values, links := len(s.values), len(s.links)
	s.rw.RUnlock()

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "value_services"),
			"The current number of cached value services.",
			nil, nil,
		),
		prometheus.GaugeValue,
		float64(values),
	)

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "link_services"),
			"The current number of cached link services.",
			nil, nil,
		),
		prometheus.GaugeValue,
		float64(links),
	)

	s.constructed.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*Service)(nil)
)
