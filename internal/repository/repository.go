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

// Package repository defines the capability the value stores use to reach a relational backend.
//
// The SQL dialect's lexical rendering and connection management live behind it.
package repository

import (
	"context"

	"github.com/meshdb/meshdb/internal/domain"
)

// Rows represents query results.
//
// It is implemented by [*fsql.Rows].
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Dialect renders dialect-specific parts of SQL statements.
type Dialect interface {
	// Name returns dialect name: sqlite, postgresql or mysql.
	Name() string

	// Quote returns quoted identifier.
	Quote(ident string) string

	// Placeholder returns n-th (starting from 1) query parameter placeholder.
	Placeholder(n int) string

	// ColumnType returns column type for the given member type.
	ColumnType(t domain.MemberType) string

	// InsertIgnore returns INSERT statement that skips rows violating unique constraints.
	// Table and columns are already quoted; values is the rendered VALUES list.
	InsertIgnore(table, columns, values string) string

	// IsUniqueViolation returns true if err is a unique constraint violation.
	IsUniqueViolation(err error) bool
}

// Translator resolves domains into storage tables.
type Translator interface {
	Dialect() Dialect
	Table(d *domain.MeshDomain) *Table
	LinkTable(pair domain.LinkedDomains, d *domain.MeshDomain) *Table
}

// Repository executes SQL statements generated by value stores.
//
// Errors are returned as is (wrapped with location only);
// Repository does not retry.
type Repository interface {
	Translator

	// Exec executes a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	// Query executes a statement returning rows.
	// The caller must close them.
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// QueryCount executes a statement returning a single integer.
	QueryCount(ctx context.Context, query string, args ...any) (int64, error)

	// CreateStorage creates the table if needed.
	//
	// It is idempotent; returned boolean value indicates whether this call provisioned the table.
	CreateStorage(ctx context.Context, t *Table) (bool, error)

	// EnsureColumns adds missing columns to the existing table.
	EnsureColumns(ctx context.Context, t *Table) error

	// DropStorage drops the table if it exists.
	DropStorage(ctx context.Context, t *Table) error
}
