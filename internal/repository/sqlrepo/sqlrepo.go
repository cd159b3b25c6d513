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

// Package sqlrepo provides the repository capability backed by database/sql
// for SQLite, PostgreSQL and MySQL.
package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/repository"
	"github.com/meshdb/meshdb/internal/util/fsql"
	"github.com/meshdb/meshdb/internal/util/lazyerrors"
	"github.com/meshdb/meshdb/internal/util/observability"
)

// Repo implements repository.Repository on top of *fsql.DB.
//
//nolint:vet // for readability
type Repo struct {
	db      *fsql.DB
	dialect repository.Dialect
	l       *zap.Logger

	rw      sync.RWMutex
	created map[string]struct{}
}

// New wraps an opened database with the given dialect name.
func New(db *sql.DB, dialect string, l *zap.Logger) (*Repo, error) {
	d, ok := dialects[dialect]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q, expected one of %v", dialect, maps.Keys(dialects))
	}

	return &Repo{
		db:      fsql.WrapDB(db, dialect, dialect, l),
		dialect: d,
		l:       l.Named("sqlrepo"),
		created: map[string]struct{}{},
	}, nil
}

// Close closes the database.
func (r *Repo) Close() error {
	return r.db.Close()
}

// Dialect implements repository.Translator.
func (r *Repo) Dialect() repository.Dialect {
	return r.dialect
}

// Table implements repository.Translator.
func (r *Repo) Table(d *domain.MeshDomain) *repository.Table {
	return repository.NewTable(d)
}

// LinkTable implements repository.Translator.
func (r *Repo) LinkTable(pair domain.LinkedDomains, d *domain.MeshDomain) *repository.Table {
	return repository.NewLinkTable(pair, d)
}

// Exec implements repository.Repository.
func (r *Repo) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, lazyerrors.Error(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, lazyerrors.Error(err)
	}

	return n, nil
}

// Query implements repository.Repository.
func (r *Repo) Query(ctx context.Context, query string, args ...any) (repository.Rows, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return rows, nil
}

// QueryCount implements repository.Repository.
func (r *Repo) QueryCount(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, lazyerrors.Error(err)
	}

	return n, nil
}

// CreateStorage implements repository.Repository.
func (r *Repo) CreateStorage(ctx context.Context, t *repository.Table) (bool, error) {
	defer observability.FuncCall(ctx)()

	r.rw.Lock()
	defer r.rw.Unlock()

	if _, ok := r.created[t.Name]; ok {
		return false, nil
	}

	defs := make([]string, 0, len(t.Columns)+1)

	for i, c := range t.Columns {
		def := r.dialect.Quote(c.Name) + " " + r.dialect.ColumnType(c.Type)
		if i == 0 {
			def += " NOT NULL PRIMARY KEY"
		}

		defs = append(defs, def)
	}

	if len(t.Unique) > 0 {
		defs = append(defs, "UNIQUE ("+r.quoteAll(t.Unique)+")")
	}

	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", r.dialect.Quote(t.Name), strings.Join(defs, ", "))
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return false, lazyerrors.Error(err)
	}

	r.created[t.Name] = struct{}{}

	r.l.Debug("Storage created", zap.String("table", t.Name))

	return true, nil
}

// EnsureColumns implements repository.Repository.
func (r *Repo) EnsureColumns(ctx context.Context, t *repository.Table) error {
	defer observability.FuncCall(ctx)()

	q := fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", r.dialect.Quote(t.Name))

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return lazyerrors.Error(err)
	}

	existing, err := rows.Columns()
	_ = rows.Close()

	if err != nil {
		return lazyerrors.Error(err)
	}

	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[c] = struct{}{}
	}

	for _, c := range t.Columns {
		if _, ok := have[c.Name]; ok {
			continue
		}

		q = fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN %s %s",
			r.dialect.Quote(t.Name), r.dialect.Quote(c.Name), r.dialect.ColumnType(c.Type),
		)

		if _, err = r.db.ExecContext(ctx, q); err != nil {
			return lazyerrors.Error(err)
		}

		r.l.Debug("Column added", zap.String("table", t.Name), zap.String("column", c.Name))
	}

	return nil
}

// DropStorage implements repository.Repository.
func (r *Repo) DropStorage(ctx context.Context, t *repository.Table) error {
	defer observability.FuncCall(ctx)()

	r.rw.Lock()
	defer r.rw.Unlock()

	q := fmt.Sprintf("DROP TABLE IF EXISTS %s", r.dialect.Quote(t.Name))
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return lazyerrors.Error(err)
	}

	delete(r.created, t.Name)

	r.l.Debug("Storage dropped", zap.String("table", t.Name))

	return nil
}

// quoteAll returns quoted comma-separated identifiers.
func (r *Repo) quoteAll(idents []string) string {
	res := make([]string, len(idents))
	for i, s := range idents {
		res[i] = r.dialect.Quote(s)
	}

	return strings.Join(res, ", ")
}

// Describe implements prometheus.Collector.
func (r *Repo) Describe(ch chan<- *prometheus.Desc) {
	r.db.Describe(ch)
}

// Collect implements prometheus.Collector.
func (r *Repo) Collect(ch chan<- prometheus.Metric) {
	r.db.Collect(ch)
}

// check interfaces
var (
	_ repository.Repository = (*Repo)(nil)
	_ prometheus.Collector  = (*Repo)(nil)
)
