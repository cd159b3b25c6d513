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

// Package sqlrepotest provides helpers for tests that need a real repository.
package sqlrepotest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshdb/meshdb/internal/repository/sqlrepo"
	"github.com/meshdb/meshdb/internal/util/testutil"
)

// New returns a new repository backed by a private in-memory SQLite database.
//
// It is closed on test cleanup.
func New(tb testing.TB) *sqlrepo.Repo {
	tb.Helper()

	r, err := sqlrepo.Open(testutil.Ctx(tb), "file::memory:", testutil.Logger(tb))
	require.NoError(tb, err)

	tb.Cleanup(func() {
		require.NoError(tb, r.Close())
	})

	return r
}
