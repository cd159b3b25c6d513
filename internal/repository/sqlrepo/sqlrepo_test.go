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

package sqlrepo_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/repository"
	"github.com/meshdb/meshdb/internal/repository/sqlrepo"
	"github.com/meshdb/meshdb/internal/repository/sqlrepo/sqlrepotest"
	"github.com/meshdb/meshdb/internal/util/testutil"
)

func TestStorage(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	r := sqlrepotest.New(t)

	d := domain.New(meshkey.New(), testutil.DomainName(t), domain.Member{Name: "name", Type: domain.TypeString})
	table := r.Table(d)

	created, err := r.CreateStorage(ctx, table)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = r.CreateStorage(ctx, table)
	require.NoError(t, err)
	assert.False(t, created)

	q := fmt.Sprintf(`INSERT INTO %s (_key, _generics, name) VALUES (?, ?, ?)`, r.Dialect().Quote(table.Name))
	n, err := r.Exec(ctx, q, meshkey.New(), "", "Ada")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// new member
	d = domain.New(
		d.Key, d.Name,
		domain.Member{Name: "name", Type: domain.TypeString},
		domain.Member{Name: "age", Type: domain.TypeInt},
	)
	require.NoError(t, r.EnsureColumns(ctx, r.Table(d)))
	require.NoError(t, r.EnsureColumns(ctx, r.Table(d)))

	count, err := r.QueryCount(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE age IS NULL`, r.Dialect().Quote(table.Name)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	rows, err := r.Query(ctx, fmt.Sprintf(`SELECT name FROM %s`, r.Dialect().Quote(table.Name)))
	require.NoError(t, err)

	require.True(t, rows.Next())

	var name string
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "Ada", name)
	assert.False(t, rows.Next())
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	require.NoError(t, r.DropStorage(ctx, table))
	require.NoError(t, r.DropStorage(ctx, table))

	created, err = r.CreateStorage(ctx, table)
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, 3, promtestutil.CollectAndCount(r))
}

func TestUniqueViolation(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	r := sqlrepotest.New(t)

	a := domain.New(meshkey.New(), "a")
	b := domain.New(meshkey.New(), "b")
	pair := domain.NewLinkedDomains(a.Key, b.Key)

	d, err := domain.NewLinkDomain(pair, a, b)
	require.NoError(t, err)

	table := r.LinkTable(pair, d)
	_, err = r.CreateStorage(ctx, table)
	require.NoError(t, err)

	quoted := r.Dialect().Quote(table.Name)
	set, item := meshkey.New(), meshkey.New()

	q := fmt.Sprintf(`INSERT INTO %s (_key, "set", "item") VALUES (?, ?, ?)`, quoted)
	_, err = r.Exec(ctx, q, meshkey.New(), set, item)
	require.NoError(t, err)

	_, err = r.Exec(ctx, q, meshkey.New(), set, item)
	require.Error(t, err)
	assert.True(t, r.Dialect().IsUniqueViolation(err), "%v", err)

	q = r.Dialect().InsertIgnore(quoted, `_key, "set", "item"`, "(?, ?, ?)")
	n, err := r.Exec(ctx, q, meshkey.New(), set, item)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDialects(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		quoted      string
		placeholder string
		keyType     string
		insert      string
		unique      error
	}{
		sqlrepo.SQLite: {
			quoted:      `"a""b"`,
			placeholder: "?",
			keyType:     "TEXT",
			insert:      `INSERT OR IGNORE INTO t (c) VALUES (?)`,
		},
		sqlrepo.PostgreSQL: {
			quoted:      `"a""b"`,
			placeholder: "$3",
			keyType:     "TEXT",
			insert:      `INSERT INTO t (c) VALUES (?) ON CONFLICT DO NOTHING`,
			unique:      &pgconn.PgError{Code: pgerrcode.UniqueViolation},
		},
		sqlrepo.MySQL: {
			quoted:      "`a\"b`",
			placeholder: "?",
			keyType:     "VARCHAR(36)",
			insert:      `INSERT IGNORE INTO t (c) VALUES (?)`,
			unique:      &mysql.MySQLError{Number: 1062},
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			db, mock, err := sqlmock.New()
			require.NoError(t, err)

			r, err := sqlrepo.New(db, name, testutil.Logger(t))
			require.NoError(t, err)

			t.Cleanup(func() {
				mock.ExpectClose()
				require.NoError(t, r.Close())
			})

			d := r.Dialect()
			assert.Equal(t, name, d.Name())
			assert.Equal(t, tc.quoted, d.Quote(`a"b`))
			assert.Equal(t, tc.placeholder, d.Placeholder(3))
			assert.Equal(t, tc.keyType, d.ColumnType(domain.TypeKey))
			assert.Equal(t, tc.insert, d.InsertIgnore("t", "c", "(?)"))
			assert.False(t, d.IsUniqueViolation(errors.New("other")))

			if tc.unique != nil {
				assert.True(t, d.IsUniqueViolation(fmt.Errorf("wrapped: %w", tc.unique)))
			}
		})
	}

	_, err := sqlrepo.New(nil, "oracle", testutil.Logger(t))
	assert.Error(t, err)
}

func TestCreateStorageSQL(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	r, err := sqlrepo.New(db, sqlrepo.PostgreSQL, testutil.Logger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, r.Close())
	})

	table := &repository.Table{
		Name: "l_x",
		Columns: []repository.Column{
			{Name: repository.KeyColumn, Type: domain.TypeKey},
			{Name: "set", Type: domain.TypeKey},
			{Name: "n", Type: domain.TypeInt},
		},
		Unique: []string{"set", "n"},
	}

	mock.ExpectExec(
		`CREATE TABLE IF NOT EXISTS "l_x" ("_key" TEXT NOT NULL PRIMARY KEY, "set" TEXT, "n" BIGINT, UNIQUE ("set", "n"))`,
	).WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := r.CreateStorage(testutil.Ctx(t), table)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = r.CreateStorage(testutil.Ctx(t), table)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, mock.ExpectationsWereMet())
}
