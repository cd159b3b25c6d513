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
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/repository/sqlrepo"
	"github.com/meshdb/meshdb/internal/util/testutil"
	"github.com/meshdb/meshdb/internal/where"
)

// setupMock returns a new PostgreSQL store for a fixed Person domain backed by sqlmock.
func setupMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	r, err := sqlrepo.New(db, sqlrepo.PostgreSQL, testutil.Logger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, r.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	d := domain.New(
		meshkey.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		"Person",
		domain.Member{Name: "name", Type: domain.TypeString},
		domain.Member{Name: "age", Type: domain.TypeInt},
	)

	mock.ExpectExec(
		`CREATE TABLE IF NOT EXISTS "d_6ba7b8109dad11d180b400c04fd430c8" ` +
			`("_key" TEXT NOT NULL PRIMARY KEY, "_generics" TEXT, "_meta" TEXT, "name" TEXT, "age" BIGINT)`,
	).WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := New(testutil.Ctx(t), r, d, nil, testutil.Logger(t))
	require.NoError(t, err)

	return s, mock
}

func TestQuerySQL(t *testing.T) {
	t.Parallel()

	s, mock := setupMock(t)
	k := meshkey.New()

	mock.ExpectQuery(
		`SELECT "_key", "_generics", "_meta", "name", "age" FROM "d_6ba7b8109dad11d180b400c04fd430c8" ` +
			`WHERE ("name" = $1 AND NOT ("age" IN ($2, $3))) ORDER BY "age" DESC LIMIT $4 OFFSET $5`,
	).WithArgs("Ada", int64(1), int64(2), int64(10), int64(0)).WillReturnRows(
		sqlmock.NewRows([]string{"_key", "_generics", "_meta", "name", "age"}).
			AddRow(k.String(), "", `{"source":"import"}`, "Ada", int64(30)),
	)

	w := where.And(where.Eq("name", "Ada"), where.Not(where.In("age", 1, 2)))
	req := &ReadRequest{OrderBy: []Order{{Member: "age", Descending: true}}, Limit: pointer.ToInt64(10)}

	res, err := s.QueryValues(testutil.Ctx(t), meshkey.Null, w, req)
	require.NoError(t, err)
	require.Len(t, res, 1)

	expected := &domain.Object{
		Key:      k,
		Metadata: map[string]string{"source": "import", domain.MetadataGenerics: ""},
		Values:   map[string]any{"name": "Ada", "age": int64(30)},
	}
	assert.Equal(t, expected, res[0])

	mock.ExpectQuery(`SELECT COUNT(*) FROM "d_6ba7b8109dad11d180b400c04fd430c8" WHERE 1 = 0`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	n, err := s.QueryCount(testutil.Ctx(t), meshkey.Null, where.Or())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	s, mock := setupMock(t)

	mock.ExpectExec(
		`INSERT INTO "d_6ba7b8109dad11d180b400c04fd430c8" ("_key", "_generics", "_meta", "name", "age") ` +
			`VALUES ($1, $2, $3, $4, $5), ($6, $7, $8, $9, $10)`,
	).WithArgs(
		sqlmock.AnyArg(), "", nil, "Ada", int64(30),
		sqlmock.AnyArg(), "", `{"source":"import"}`, "Brian", nil,
	).WillReturnResult(sqlmock.NewResult(0, 2))

	brian := domain.NewObject(map[string]any{"name": "Brian"})
	brian.Metadata["source"] = "import"

	err := s.InsertValues(testutil.Ctx(t), meshkey.Null, domain.NewObject(map[string]any{"name": "Ada", "age": 30}), brian)
	require.NoError(t, err)
	assert.False(t, brian.Key.IsNull())
	assert.Equal(t, "", brian.Metadata[domain.MetadataGenerics])
}

func TestUpdateDeleteSQL(t *testing.T) {
	t.Parallel()

	s, mock := setupMock(t)
	k := meshkey.New()

	mock.ExpectExec(`UPDATE "d_6ba7b8109dad11d180b400c04fd430c8" SET "age" = $1, "name" = $2 WHERE "_key" = $3`).
		WithArgs(int64(31), "Ada", k.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.UpdateValues(
		testutil.Ctx(t), meshkey.Null,
		&domain.Updater{Key: k, Values: map[string]any{"name": "Ada", "age": 31}},
		&domain.Updater{Key: k},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mock.ExpectExec(`DELETE FROM "d_6ba7b8109dad11d180b400c04fd430c8" WHERE 1 = 1`).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err = s.DeleteValues(testutil.Ctx(t), meshkey.Null, where.True())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	assert.Equal(t, "$2", s.Placeholder(2))
}

func TestNoSQLOnErrors(t *testing.T) {
	t.Parallel()

	// unexpected statements would fail with sqlmock errors instead of typed ones
	s, _ := setupMock(t)

	ctx := testutil.Ctx(t)

	// the second updater is invalid, so the first must not be executed either
	_, err := s.UpdateValues(
		ctx, meshkey.Null,
		&domain.Updater{Key: meshkey.New(), Values: map[string]any{"age": 1}},
		&domain.Updater{Key: meshkey.New(), Values: map[string]any{"nope": 1}},
	)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeUnknownMember), "%v", err)

	err = s.InsertValues(ctx, meshkey.Null,
		domain.NewObject(map[string]any{"age": 1}),
		domain.NewObject(map[string]any{"age": "one"}),
	)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeInvalidValue), "%v", err)

	_, err = s.DeleteValues(ctx, meshkey.Null, where.And(where.True(), where.Eq("nope", 1)))
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeUnknownMember), "%v", err)

	_, err = s.QueryValues(ctx, meshkey.Null, where.Eq("nope", 1), nil)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeUnknownMember), "%v", err)

	_, err = s.QueryValues(ctx, meshkey.Null, where.True(), &ReadRequest{Members: []string{"name", "nope"}})
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeUnknownMember), "%v", err)

	_, err = s.QueryValues(ctx, meshkey.Null, where.True(), &ReadRequest{OrderBy: []Order{{Member: "nope"}}})
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeUnknownMember), "%v", err)

	_, err = s.QueryCount(ctx, meshkey.Null, where.Or(where.Eq("age", 1), where.Eq("nope", 1)))
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeUnknownMember), "%v", err)
}
