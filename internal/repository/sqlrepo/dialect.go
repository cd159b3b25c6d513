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

package sqlrepo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/repository"
)

// Dialect names.
const (
	SQLite     = "sqlite"
	PostgreSQL = "postgresql"
	MySQL      = "mysql"
)

// errDuplicateEntry is MySQL's ER_DUP_ENTRY.
const errDuplicateEntry = 1062

// dialects contains all supported dialects.
var dialects = map[string]repository.Dialect{
	SQLite:     sqliteDialect{},
	PostgreSQL: postgresqlDialect{},
	MySQL:      mysqlDialect{},
}

// sqliteDialect renders SQLite statements.
type sqliteDialect struct{}

func (sqliteDialect) Name() string {
	return SQLite
}

func (sqliteDialect) Quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

func (sqliteDialect) Placeholder(int) string {
	return "?"
}

func (sqliteDialect) ColumnType(t domain.MemberType) string {
	switch t {
	case domain.TypeInt, domain.TypeBool:
		return "INTEGER"
	case domain.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) InsertIgnore(table, columns, values string) string {
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES %s", table, columns, values)
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Code() {
	case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlitelib.SQLITE_CONSTRAINT:
		return strings.Contains(e.Error(), "UNIQUE")
	default:
		return false
	}
}

// postgresqlDialect renders PostgreSQL statements.
type postgresqlDialect struct{}

func (postgresqlDialect) Name() string {
	return PostgreSQL
}

func (postgresqlDialect) Quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

func (postgresqlDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (postgresqlDialect) ColumnType(t domain.MemberType) string {
	switch t {
	case domain.TypeInt:
		return "BIGINT"
	case domain.TypeFloat:
		return "DOUBLE PRECISION"
	case domain.TypeBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (postgresqlDialect) InsertIgnore(table, columns, values string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING", table, columns, values)
}

func (postgresqlDialect) IsUniqueViolation(err error) bool {
	var e *pgconn.PgError
	return errors.As(err, &e) && e.Code == pgerrcode.UniqueViolation
}

// mysqlDialect renders MySQL statements.
type mysqlDialect struct{}

func (mysqlDialect) Name() string {
	return MySQL
}

func (mysqlDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) Placeholder(int) string {
	return "?"
}

func (mysqlDialect) ColumnType(t domain.MemberType) string {
	switch t {
	case domain.TypeInt:
		return "BIGINT"
	case domain.TypeFloat:
		return "DOUBLE"
	case domain.TypeBool:
		return "BOOLEAN"
	case domain.TypeKey:
		return "VARCHAR(36)"
	case domain.TypeTime:
		return "VARCHAR(35)"
	case domain.TypeString:
		return "TEXT"
	default:
		return "LONGTEXT"
	}
}

func (mysqlDialect) InsertIgnore(table, columns, values string) string {
	return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES %s", table, columns, values)
}

func (mysqlDialect) IsUniqueViolation(err error) bool {
	var e *mysql.MySQLError
	return errors.As(err, &e) && e.Number == errDuplicateEntry
}

// check interfaces
var (
	_ repository.Dialect = sqliteDialect{}
	_ repository.Dialect = postgresqlDialect{}
	_ repository.Dialect = mysqlDialect{}
)
