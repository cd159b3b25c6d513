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

// Package store provides domain value stores that translate CRUD intents into SQL.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/repository"
	"github.com/meshdb/meshdb/internal/util/lazyerrors"
	"github.com/meshdb/meshdb/internal/util/observability"
	"github.com/meshdb/meshdb/internal/where"
)

// DomainValueStore persists objects of a single domain.
//
// All predicate, member and value errors are reported before any SQL statement is sent.
type DomainValueStore interface {
	// Domain returns the store's domain.
	Domain() *domain.MeshDomain

	// QueryValues returns objects matching the predicate; nil predicate matches everything.
	QueryValues(ctx context.Context, actor meshkey.MeshKey, w *where.Node, req *ReadRequest) ([]*domain.Object, error)

	// QueryCount returns the number of objects matching the predicate.
	QueryCount(ctx context.Context, actor meshkey.MeshKey, w *where.Node) (int64, error)

	// InsertValues inserts objects with a single statement.
	// Each object leaves the call with a non-null key and generics metadata.
	InsertValues(ctx context.Context, actor meshkey.MeshKey, objs ...*domain.Object) error

	// InsertUnique is like InsertValues, but silently skips objects violating unique constraints.
	// It returns the number of inserted objects.
	InsertUnique(ctx context.Context, actor meshkey.MeshKey, objs ...*domain.Object) (int64, error)

	// UpdateValues changes named members of objects identified by updaters' keys.
	UpdateValues(ctx context.Context, actor meshkey.MeshKey, updaters ...*domain.Updater) (int64, error)

	// DeleteValues deletes objects matching the predicate.
	// Nil predicate is rejected; use where.True() to delete everything.
	DeleteValues(ctx context.Context, actor meshkey.MeshKey, w *where.Node) (int64, error)
}

// ReadRequest describes projection, ordering and paging of QueryValues.
type ReadRequest struct {
	// Members to return; all if empty.
	Members []string

	OrderBy []Order
	Limit   *int64
	Offset  int64
}

// Order is a single ordering term.
type Order struct {
	Member     string
	Descending bool
}

// Store is a DomainValueStore backed by SQL repository.
//
//nolint:vet // for readability
type Store struct {
	repo  repository.Repository
	d     *domain.MeshDomain
	table *repository.Table
	l     *zap.Logger

	genericsM    sync.Mutex
	genericsDone bool
}

// New creates a new store for the given domain and provisions its table.
//
// If table is nil, it is resolved by the repository's translator.
func New(ctx context.Context, repo repository.Repository, d *domain.MeshDomain, table *repository.Table, l *zap.Logger) (*Store, error) {
	defer observability.FuncCall(ctx)()

	if table == nil {
		table = repo.Table(d)
	}

	if _, err := repo.CreateStorage(ctx, table); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return &Store{
		repo:  repo,
		d:     d,
		table: table,
		l:     l.Named("store").With(zap.String("domain", d.Name), zap.Stringer("key", d.Key)),
	}, nil
}

// Domain implements DomainValueStore.
func (s *Store) Domain() *domain.MeshDomain {
	return s.d
}

// Table returns the store's table.
func (s *Store) Table() *repository.Table {
	return s.table
}

// resolve returns the column for the given property name.
func (s *Store) resolve(name string) (column, error) {
	if name == KeyProperty {
		return column{name: KeyProperty, member: domain.Member{Name: KeyProperty, Type: domain.TypeKey}}, nil
	}

	m, ok := s.d.Member(name)
	if !ok {
		return column{}, mesherrors.NewWithArgument(
			mesherrors.ErrorCodeUnknownMember,
			fmt.Errorf("domain %q has no member %q", s.d.Name, name),
			name,
		)
	}

	c := column{name: m.Name, member: m}

	if m.Type == domain.TypeGeneric {
		bindings := s.d.Generics()
		if m.Param < 0 || m.Param >= len(bindings) {
			return column{}, mesherrors.NewWithArgument(
				mesherrors.ErrorCodeInvalidDomain,
				fmt.Errorf("member %q is bound to missing generic argument %d", m.Name, m.Param),
				name,
			)
		}

		c.bound = bindings[m.Param]
	}

	return c, nil
}

// QueryValues implements DomainValueStore.
func (s *Store) QueryValues(ctx context.Context, actor meshkey.MeshKey, w *where.Node, req *ReadRequest) ([]*domain.Object, error) {
	defer observability.FuncCall(ctx)()

	if req == nil {
		req = new(ReadRequest)
	}

	names := req.Members
	if len(names) == 0 {
		names = s.d.MemberNames()
	}

	cols := make([]column, len(names))

	for i, name := range names {
		var err error
		if cols[i], err = s.resolve(name); err != nil {
			return nil, err
		}
	}

	dialect := s.repo.Dialect()
	b := newBuilder(dialect)

	selected := append([]string{repository.KeyColumn, repository.GenericsColumn, repository.MetaColumn}, names...)
	b.write("SELECT %s FROM %s", quoteColumns(dialect, selected), dialect.Quote(s.table.Name))

	if err := s.writeWhere(b, w); err != nil {
		return nil, err
	}

	if len(req.OrderBy) > 0 {
		terms := make([]string, len(req.OrderBy))

		for i, o := range req.OrderBy {
			c, err := s.resolve(o.Member)
			if err != nil {
				return nil, err
			}

			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}

			terms[i] = dialect.Quote(c.name) + " " + dir
		}

		b.write(" ORDER BY %s", strings.Join(terms, ", "))
	}

	if req.Limit != nil || req.Offset != 0 {
		limit := int64(math.MaxInt64)
		if req.Limit != nil {
			limit = *req.Limit
		}

		if limit < 0 || req.Offset < 0 {
			return nil, mesherrors.Errorf(mesherrors.ErrorCodeInvalidValue, "invalid limit %d or offset %d", limit, req.Offset)
		}

		b.write(" LIMIT %s OFFSET %s", b.arg(limit), b.arg(req.Offset))
	}

	s.l.Debug("QueryValues", zap.Stringer("actor", actor), zap.Stringer("where", w))

	rows, err := s.repo.Query(ctx, b.String(), b.args...)
	if err != nil {
		return nil, err
	}

	raws, err := scanAll(rows, len(selected))
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	res := make([]*domain.Object, 0, len(raws))

	for _, raw := range raws {
		obj, err := s.toObject(raw, cols)
		if err != nil {
			return nil, err
		}

		res = append(res, obj)
	}

	return res, nil
}

// scanAll reads all rows and closes them.
//
// Rows are read completely before other statements are issued,
// so a single-connection database never deadlocks.
func scanAll(rows repository.Rows, n int) ([][]any, error) {
	defer rows.Close()

	var res [][]any

	for rows.Next() {
		raw := make([]any, n)
		dest := make([]any, n)

		for i := range raw {
			dest[i] = &raw[i]
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		res = append(res, raw)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// toObject converts a scanned row into an object.
func (s *Store) toObject(raw []any, cols []column) (*domain.Object, error) {
	obj := &domain.Object{
		Metadata: map[string]string{},
		Values:   make(map[string]any, len(cols)),
	}

	keyText, _ := asString(raw[0])

	var err error
	if obj.Key, err = meshkey.Parse(keyText); err != nil {
		return nil, lazyerrors.Error(err)
	}

	if meta, ok := asString(raw[2]); ok && meta != "" {
		if err = json.Unmarshal([]byte(meta), &obj.Metadata); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	generics, _ := asString(raw[1])
	obj.Metadata[domain.MetadataGenerics] = generics

	for i, c := range cols {
		v, err := decodeValue(c, raw[i+3])
		if err != nil {
			return nil, err
		}

		if v != nil {
			obj.Values[c.name] = v
		}
	}

	return obj, nil
}

// QueryCount implements DomainValueStore.
func (s *Store) QueryCount(ctx context.Context, actor meshkey.MeshKey, w *where.Node) (int64, error) {
	defer observability.FuncCall(ctx)()

	dialect := s.repo.Dialect()
	b := newBuilder(dialect)
	b.write("SELECT COUNT(*) FROM %s", dialect.Quote(s.table.Name))

	if err := s.writeWhere(b, w); err != nil {
		return 0, err
	}

	s.l.Debug("QueryCount", zap.Stringer("actor", actor), zap.Stringer("where", w))

	return s.repo.QueryCount(ctx, b.String(), b.args...)
}

// InsertValues implements DomainValueStore.
func (s *Store) InsertValues(ctx context.Context, actor meshkey.MeshKey, objs ...*domain.Object) error {
	defer observability.FuncCall(ctx)()

	_, err := s.insert(ctx, actor, false, objs)

	return err
}

// InsertUnique implements DomainValueStore.
func (s *Store) InsertUnique(ctx context.Context, actor meshkey.MeshKey, objs ...*domain.Object) (int64, error) {
	defer observability.FuncCall(ctx)()

	return s.insert(ctx, actor, true, objs)
}

// insert inserts objects with a single statement.
func (s *Store) insert(ctx context.Context, actor meshkey.MeshKey, ignore bool, objs []*domain.Object) (int64, error) {
	if len(objs) == 0 {
		return 0, nil
	}

	names := s.d.MemberNames()
	cols := make([]column, len(names))

	for i, name := range names {
		var err error
		if cols[i], err = s.resolve(name); err != nil {
			return 0, err
		}
	}

	generics := domain.FormatGenerics(s.d.Generics())

	// validate and encode everything first
	encoded := make([][]any, len(objs))

	for i, obj := range objs {
		for name := range obj.Values {
			if _, err := s.resolve(name); err != nil {
				return 0, err
			}
		}

		meta := make(map[string]string, len(obj.Metadata))
		for k, v := range obj.Metadata {
			if k != domain.MetadataGenerics {
				meta[k] = v
			}
		}

		var metaText any
		if len(meta) > 0 {
			b, err := json.Marshal(meta)
			if err != nil {
				return 0, lazyerrors.Error(err)
			}

			metaText = string(b)
		}

		row := make([]any, 0, len(cols)+3)
		row = append(row, nil, generics, metaText)

		for _, c := range cols {
			v, err := encodeValue(c, obj.Values[c.name])
			if err != nil {
				return 0, err
			}

			row = append(row, v)
		}

		encoded[i] = row
	}

	if err := s.ensureGenerics(ctx, generics); err != nil {
		return 0, err
	}

	for i, obj := range objs {
		if obj.Key.IsNull() {
			obj.Key = meshkey.New()
		}

		if obj.Metadata == nil {
			obj.Metadata = map[string]string{}
		}

		obj.Metadata[domain.MetadataGenerics] = generics
		encoded[i][0] = obj.Key.String()
	}

	dialect := s.repo.Dialect()
	b := newBuilder(dialect)

	values := make([]string, len(encoded))

	for i, row := range encoded {
		placeholders := make([]string, len(row))
		for j, v := range row {
			placeholders[j] = b.arg(v)
		}

		values[i] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	table := dialect.Quote(s.table.Name)
	columns := quoteColumns(dialect, append([]string{repository.KeyColumn, repository.GenericsColumn, repository.MetaColumn}, names...))

	var q string
	if ignore {
		q = dialect.InsertIgnore(table, columns, strings.Join(values, ", "))
	} else {
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, columns, strings.Join(values, ", "))
	}

	s.l.Debug("InsertValues", zap.Stringer("actor", actor), zap.Int("objects", len(objs)), zap.Bool("ignore", ignore))

	return s.repo.Exec(ctx, q, b.args...)
}

// ensureGenerics provisions generic binding storage for generic domains once per store.
func (s *Store) ensureGenerics(ctx context.Context, generics string) error {
	if !s.d.IsGeneric {
		return nil
	}

	s.genericsM.Lock()
	defer s.genericsM.Unlock()

	if s.genericsDone {
		return nil
	}

	table := repository.GenericsTable()
	if _, err := s.repo.CreateStorage(ctx, table); err != nil {
		return lazyerrors.Error(err)
	}

	dialect := s.repo.Dialect()
	b := newBuilder(dialect)
	values := fmt.Sprintf("(%s, %s, %s)", b.arg(meshkey.Derive(s.d.Key, generics).String()), b.arg(s.d.Key.String()), b.arg(generics))
	q := dialect.InsertIgnore(dialect.Quote(table.Name), quoteColumns(dialect, table.ColumnNames()), values)

	if _, err := s.repo.Exec(ctx, q, b.args...); err != nil {
		return lazyerrors.Error(err)
	}

	s.genericsDone = true

	return nil
}

// UpdateValues implements DomainValueStore.
func (s *Store) UpdateValues(ctx context.Context, actor meshkey.MeshKey, updaters ...*domain.Updater) (int64, error) {
	defer observability.FuncCall(ctx)()

	dialect := s.repo.Dialect()
	statements := make([]*builder, 0, len(updaters))

	for _, u := range updaters {
		if u.Key.IsNull() {
			return 0, mesherrors.New(mesherrors.ErrorCodeInvalidValue, "updater has no key")
		}

		if len(u.Values) == 0 {
			continue
		}

		names := maps.Keys(u.Values)
		slices.Sort(names)

		b := newBuilder(dialect)
		sets := make([]string, len(names))

		for i, name := range names {
			c, err := s.resolve(name)
			if err != nil {
				return 0, err
			}

			v, err := encodeValue(c, u.Values[name])
			if err != nil {
				return 0, err
			}

			sets[i] = dialect.Quote(c.name) + " = " + b.arg(v)
		}

		b.write(
			"UPDATE %s SET %s WHERE %s = %s",
			dialect.Quote(s.table.Name), strings.Join(sets, ", "), dialect.Quote(repository.KeyColumn), b.arg(u.Key.String()),
		)

		statements = append(statements, b)
	}

	s.l.Debug("UpdateValues", zap.Stringer("actor", actor), zap.Int("updaters", len(updaters)))

	var total int64

	for _, b := range statements {
		n, err := s.repo.Exec(ctx, b.String(), b.args...)
		if err != nil {
			return total, err
		}

		total += n
	}

	return total, nil
}

// DeleteValues implements DomainValueStore.
func (s *Store) DeleteValues(ctx context.Context, actor meshkey.MeshKey, w *where.Node) (int64, error) {
	defer observability.FuncCall(ctx)()

	if w == nil {
		return 0, mesherrors.New(
			mesherrors.ErrorCodeMissingPredicate,
			"delete requires a predicate; use an explicit true predicate to delete everything",
		)
	}

	dialect := s.repo.Dialect()
	b := newBuilder(dialect)
	b.write("DELETE FROM %s", dialect.Quote(s.table.Name))

	if err := s.writeWhere(b, w); err != nil {
		return 0, err
	}

	s.l.Debug("DeleteValues", zap.Stringer("actor", actor), zap.Stringer("where", w))

	return s.repo.Exec(ctx, b.String(), b.args...)
}

// Placeholder returns the n-th (starting from 1) parameter placeholder of the store's dialect.
func (s *Store) Placeholder(n int) string {
	return s.repo.Dialect().Placeholder(n)
}

// check interfaces
var (
	_ DomainValueStore = (*Store)(nil)
)
