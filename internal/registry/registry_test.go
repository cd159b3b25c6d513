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

package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/link"
	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/repository/sqlrepo/sqlrepotest"
	"github.com/meshdb/meshdb/internal/store"
	"github.com/meshdb/meshdb/internal/util/teststress"
	"github.com/meshdb/meshdb/internal/util/testutil"
	"github.com/meshdb/meshdb/internal/where"
)

func setup(t *testing.T) *Service {
	t.Helper()

	s, err := New(testutil.Ctx(t), sqlrepotest.New(t), testutil.Logger(t))
	require.NoError(t, err)

	return s
}

func userDomain() *domain.MeshDomain {
	return domain.New(
		meshkey.New(),
		"User",
		domain.Member{Name: "Name", Type: domain.TypeString},
		domain.Member{Name: "Age", Type: domain.TypeInt},
	)
}

func TestCreateDomain(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setup(t)
	users := userDomain()

	require.NoError(t, s.CreateDomain(ctx, users))
	require.NoError(t, s.CreateDomain(ctx, users))

	ds, err := s.ValueDomains(ctx)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, users.Key, ds[0].Key)
	assert.Equal(t, users.Members, ds[0].Members)

	d, err := s.DomainByName(ctx, "User")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, users.Equal(d))

	d, err = s.DomainByName(ctx, "Nobody")
	require.NoError(t, err)
	assert.Nil(t, d)

	err = s.CreateDomain(ctx, domain.New(meshkey.New(), ""))
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeInvalidDomain), "%v", err)
}

func TestCreateDomainStress(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setup(t)
	users := userDomain()

	teststress.Stress(t, func(ready chan<- struct{}, start <-chan struct{}) {
		ready <- struct{}{}
		<-start

		assert.NoError(t, s.CreateDomain(ctx, users))
	})

	ds, err := s.ValueDomains(ctx)
	require.NoError(t, err)
	assert.Len(t, ds, 1)
}

func TestValueService(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setup(t)
	users := userDomain()

	var m sync.Mutex
	var res []store.DomainValueStore

	teststress.Stress(t, func(ready chan<- struct{}, start <-chan struct{}) {
		ready <- struct{}{}
		<-start

		vs, err := s.ValueService(ctx, users)
		if !assert.NoError(t, err) {
			return
		}

		m.Lock()
		res = append(res, vs)
		m.Unlock()
	})

	require.Len(t, res, teststress.NumGoroutines)

	for _, vs := range res {
		assert.Same(t, res[0], vs)
	}

	assert.Equal(t, float64(1), promtestutil.ToFloat64(s.constructed.WithLabelValues(kindValue)))
	assert.Equal(t, []meshkey.MeshKey{users.Key}, s.CachedDomains())

	// first call registers the domain
	d, err := s.Domain(ctx, users.Key)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "User", d.Name)
}

func TestUpdateDomain(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	actor := meshkey.New()
	s := setup(t)
	users := userDomain()

	vs, err := s.ValueService(ctx, users)
	require.NoError(t, err)

	updated := users.Clone()
	updated.Name = "Person"
	updated.Members = append(updated.Members, domain.Member{Name: "Email", Type: domain.TypeString})
	updated = domain.New(updated.Key, updated.Name, updated.Members...)

	require.NoError(t, s.UpdateDomain(ctx, updated))

	d, err := s.Domain(ctx, users.Key)
	require.NoError(t, err)
	assert.Equal(t, "Person", d.Name)
	assert.Len(t, d.Members, 3)

	vs2, err := s.ValueService(ctx, updated)
	require.NoError(t, err)
	assert.NotSame(t, vs, vs2)

	obj := domain.NewObject(map[string]any{"Name": "Alice", "Age": int64(30), "Email": "alice@example.com"})
	require.NoError(t, vs2.InsertValues(ctx, actor, obj))

	objs, err := vs2.QueryValues(ctx, actor, where.Eq("Email", "alice@example.com"), nil)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "Alice", objs[0].Values["Name"])

	// updating a missing domain creates it
	other := domain.New(meshkey.New(), "Other", domain.Member{Name: "X", Type: domain.TypeBool})
	require.NoError(t, s.UpdateDomain(ctx, other))

	ds, err := s.ValueDomains(ctx)
	require.NoError(t, err)
	assert.Len(t, ds, 2)
}

func TestValueServiceStoredDescriptor(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	actor := meshkey.New()
	s := setup(t)
	users := userDomain()

	require.NoError(t, s.CreateDomain(ctx, users))

	updated := domain.New(
		users.Key,
		users.Name,
		append(users.Clone().Members, domain.Member{Name: "Email", Type: domain.TypeString})...,
	)
	require.NoError(t, s.UpdateDomain(ctx, updated))

	// stale descriptor
	vs, err := s.ValueService(ctx, users)
	require.NoError(t, err)
	assert.Len(t, vs.Domain().Members, 3)

	vs2, err := s.ValueService(ctx, updated)
	require.NoError(t, err)
	assert.Same(t, vs, vs2)

	obj := domain.NewObject(map[string]any{"Name": "Bob", "Age": int64(40), "Email": "bob@example.com"})
	require.NoError(t, vs2.InsertValues(ctx, actor, obj))

	n, err := vs.QueryCount(ctx, actor, where.Eq("Email", "bob@example.com"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpdateDomainMemberType(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setup(t)
	users := userDomain()

	require.NoError(t, s.CreateDomain(ctx, users))

	changed := domain.New(
		users.Key,
		users.Name,
		domain.Member{Name: "Name", Type: domain.TypeString},
		domain.Member{Name: "Age", Type: domain.TypeString},
	)
	err := s.UpdateDomain(ctx, changed)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeInvalidDomain), "%v", err)

	changed = domain.New(
		users.Key,
		users.Name,
		domain.Member{Name: "Name", Type: domain.TypeString},
		domain.Member{Name: "Age", Type: domain.TypeSet, Of: []domain.TypeRef{{Type: domain.TypeInt}}},
	)
	err = s.UpdateDomain(ctx, changed)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeInvalidDomain), "%v", err)

	d, err := s.Domain(ctx, users.Key)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, users.Members, d.Members)

	// dropping a member keeps the rest unchanged
	require.NoError(t, s.UpdateDomain(ctx, domain.New(users.Key, users.Name, users.Members[0])))
}

func TestReservedDomainKey(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setup(t)

	d := domain.New(catalogKey, "Sneaky", domain.Member{Name: "name", Type: domain.TypeString})

	err := s.CreateDomain(ctx, d)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeInvalidDomain), "%v", err)

	err = s.UpdateDomain(ctx, d)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeInvalidDomain), "%v", err)

	_, err = s.ValueService(ctx, d)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeInvalidDomain), "%v", err)

	err = s.DeleteDomain(ctx, catalogKey)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeDomainDoesNotExist), "%v", err)

	ds, err := s.ValueDomains(ctx)
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestValueServiceDeleteStress(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setup(t)
	users := userDomain()

	require.NoError(t, s.CreateDomain(ctx, users))

	var calls atomic.Int32

	teststress.Stress(t, func(ready chan<- struct{}, start <-chan struct{}) {
		del := calls.Add(1)%2 == 0

		ready <- struct{}{}
		<-start

		// both calls may legitimately fail while racing with each other
		if del {
			_ = s.DeleteDomain(ctx, users.Key)
			return
		}

		_, _ = s.ValueService(ctx, users)
	})

	for _, k := range s.CachedDomains() {
		d, err := s.Domain(ctx, k)
		require.NoError(t, err)
		assert.NotNil(t, d, "cached service of deleted domain %s", k)
	}

	d, err := s.Domain(ctx, users.Key)
	require.NoError(t, err)

	if d != nil {
		require.NoError(t, s.DeleteDomain(ctx, users.Key))
	}

	assert.Empty(t, s.CachedDomains())
	assert.NotZero(t, s.gens[users.Key])
}

func TestLinkService(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	actor := meshkey.New()
	s := setup(t)

	users := userDomain()
	groups := domain.New(meshkey.New(), "Group", domain.Member{Name: "Title", Type: domain.TypeString})

	require.NoError(t, s.CreateDomain(ctx, users))
	require.NoError(t, s.CreateDomain(ctx, groups))

	var m sync.Mutex
	var res []*link.Service

	teststress.Stress(t, func(ready chan<- struct{}, start <-chan struct{}) {
		ready <- struct{}{}
		<-start

		pair := domain.LinkedDomains{A: users.Key, B: groups.Key}

		m.Lock()
		if len(res)%2 == 1 {
			pair = domain.LinkedDomains{A: groups.Key, B: users.Key}
		}
		m.Unlock()

		ls, err := s.LinkService(ctx, pair)
		if !assert.NoError(t, err) {
			return
		}

		m.Lock()
		res = append(res, ls)
		m.Unlock()
	})

	require.NotEmpty(t, res)

	for _, ls := range res {
		assert.Same(t, res[0], ls)
	}

	assert.Equal(t, float64(1), promtestutil.ToFloat64(s.constructed.WithLabelValues(kindLink)))

	ls, err := s.LinkService(ctx, domain.NewLinkedDomains(groups.Key, users.Key))
	require.NoError(t, err)
	assert.Same(t, res[0], ls)

	g1 := meshkey.New()
	u1, u2 := meshkey.New(), meshkey.New()

	n, err := ls.Link(ctx, actor, g1, u1, u2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	items, err := ls.Items(ctx, actor, g1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []meshkey.MeshKey{u1, u2}, items)

	lds, err := s.LinkDomains(ctx)
	require.NoError(t, err)
	require.Len(t, lds, 1)
	require.NotNil(t, lds[0].Link)
	assert.Equal(t, ls.Pair(), *lds[0].Link)

	_, err = s.LinkService(ctx, domain.NewLinkedDomains(users.Key, meshkey.New()))
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeDomainDoesNotExist), "%v", err)
}

func TestDeleteDomain(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setup(t)

	users := userDomain()
	groups := domain.New(meshkey.New(), "Group")

	vs, err := s.ValueService(ctx, users)
	require.NoError(t, err)

	require.NoError(t, s.CreateDomain(ctx, groups))

	ls, err := s.LinkService(ctx, domain.NewLinkedDomains(users.Key, groups.Key))
	require.NoError(t, err)

	require.NoError(t, s.DeleteDomain(ctx, users.Key))

	d, err := s.Domain(ctx, users.Key)
	require.NoError(t, err)
	assert.Nil(t, d)

	lds, err := s.LinkDomains(ctx)
	require.NoError(t, err)
	assert.Empty(t, lds)

	ds, err := s.ValueDomains(ctx)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, groups.Key, ds[0].Key)

	assert.Empty(t, s.CachedDomains())

	vs2, err := s.ValueService(ctx, users)
	require.NoError(t, err)
	assert.NotSame(t, vs, vs2)

	ls2, err := s.LinkService(ctx, domain.NewLinkedDomains(users.Key, groups.Key))
	require.NoError(t, err)
	assert.NotSame(t, ls, ls2)

	err = s.DeleteDomain(ctx, meshkey.New())
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeDomainDoesNotExist), "%v", err)
}

func TestCollector(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setup(t)

	_, err := s.ValueService(ctx, userDomain())
	require.NoError(t, err)

	assert.Equal(t, 3, promtestutil.CollectAndCount(s))
}
