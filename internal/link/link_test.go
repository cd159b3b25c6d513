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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/repository/sqlrepo/sqlrepotest"
	"github.com/meshdb/meshdb/internal/store"
	"github.com/meshdb/meshdb/internal/util/testutil"
)

// setup returns a link service for User and Group domains.
func setup(t *testing.T) *Service {
	t.Helper()

	users := domain.New(meshkey.New(), "User")
	groups := domain.New(meshkey.New(), "Group")
	pair := domain.NewLinkedDomains(groups.Key, users.Key)

	d, err := domain.NewLinkDomain(pair, groups, users)
	require.NoError(t, err)

	repo := sqlrepotest.New(t)

	vs, err := store.New(testutil.Ctx(t), repo, d, repo.LinkTable(pair, d), testutil.Logger(t))
	require.NoError(t, err)

	return New(pair, vs, testutil.Logger(t))
}

func TestLink(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	actor := meshkey.New()
	s := setup(t)

	g1 := meshkey.New()
	u1, u2 := meshkey.New(), meshkey.New()

	n, err := s.Link(ctx, actor, g1, u1, u2, u1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Link(ctx, actor, g1, u1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	items, err := s.Items(ctx, actor, g1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []meshkey.MeshKey{u1, u2}, items)

	count, err := s.Count(ctx, actor, g1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	sets, err := s.Sets(ctx, actor, u2)
	require.NoError(t, err)
	assert.Equal(t, []meshkey.MeshKey{g1}, sets)

	n, err = s.Unlink(ctx, actor, g1, u2, meshkey.New())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Unlink(ctx, actor, g1, u2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.Unlink(ctx, actor, g1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	items, err = s.Items(ctx, actor, g1)
	require.NoError(t, err)
	assert.Equal(t, []meshkey.MeshKey{u1}, items)

	_, err = s.Link(ctx, actor, meshkey.Null, u1)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeInvalidValue), "%v", err)
}

func TestSet(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	s := setup(t)

	set := s.Set(meshkey.New(), meshkey.New())
	a, b := meshkey.New(), meshkey.New()

	n, err := set.Add(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = set.Add(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	l, err := set.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), l)

	ok, err := set.Contains(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = set.Remove(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err = set.Contains(ctx, a)
	require.NoError(t, err)
	assert.False(t, ok)

	items, err := set.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, []meshkey.MeshKey{b}, items)

	other := s.Set(meshkey.New(), meshkey.New())
	l, err = other.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, l)
}
