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

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/registry"
	"github.com/meshdb/meshdb/internal/repository/sqlrepo/sqlrepotest"
	"github.com/meshdb/meshdb/internal/util/testutil"
)

const (
	usersYAML = `
name: User
members:
  - name: Name
    type: string
  - name: Age
    type: int
  - name: Tags
    type: set
    of: [{type: string}]
`

	groupsYAML = `
name: Group
members:
  - name: Title
    type: string
`
)

// setup returns a CLI app over an in-memory database and its output buffer.
func setup(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()

	reg, err := registry.New(testutil.Ctx(t), sqlrepotest.New(t), testutil.Logger(t))
	require.NoError(t, err)

	var out bytes.Buffer

	return &app{reg: reg, actor: meshkey.New(), out: &out}, &out
}

// lines returns output lines and resets the buffer.
func lines(out *bytes.Buffer) []string {
	s := strings.TrimSpace(out.String())
	out.Reset()

	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}

func TestReadDescriptor(t *testing.T) {
	t.Parallel()

	d, err := readDescriptor(strings.NewReader(usersYAML))
	require.NoError(t, err)
	assert.Equal(t, "User", d.Name)
	assert.Equal(t, meshkey.Derive(descriptorNamespace, "User"), d.Key)
	require.Len(t, d.Members, 3)
	assert.Equal(t, "string", d.Members[2].Of[0].String())

	_, err = readDescriptor(strings.NewReader("name: X\ncolor: red\n"))
	assert.Error(t, err)

	_, err = readDescriptor(strings.NewReader("name: X\nmembers:\n  - name: _key\n    type: string\n"))
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeInvalidDomain), "%v", err)
}

func TestCommands(t *testing.T) {
	t.Parallel()

	ctx := testutil.Ctx(t)
	a, out := setup(t)

	require.NoError(t, a.createDomain(ctx, strings.NewReader(usersYAML), false))
	require.NoError(t, a.createDomain(ctx, strings.NewReader(groupsYAML), false))
	out.Reset()

	require.NoError(t, a.domains(ctx))
	ls := lines(out)
	require.Len(t, ls, 2)
	assert.Equal(t, "Group", gjson.Get(ls[0], "name").String())
	assert.Equal(t, "User", gjson.Get(ls[1], "name").String())

	alice, bob := meshkey.New(), meshkey.New()

	require.NoError(t, a.insert(ctx, "User", []string{
		`{"_key": "` + alice.String() + `", "Name": "Alice", "Age": 42, "Tags": {"$$entries": ["admin", "dev"]}}`,
		`{"_key": "` + bob.String() + `", "Name": "Bob", "Age": 17}`,
	}))
	assert.Equal(t, []string{`"` + alice.String() + `"`, `"` + bob.String() + `"`}, lines(out))

	require.NoError(t, a.query(ctx, "User", &queryParams{
		where: `{"op": "gt", "property": "Age", "value": 18}`,
		limit: -1,
	}))
	ls = lines(out)
	require.Len(t, ls, 1)
	assert.Equal(t, alice.String(), gjson.Get(ls[0], "key").String())
	assert.Equal(t, "Alice", gjson.Get(ls[0], "values.Name").String())
	assert.Equal(t, int64(42), gjson.Get(ls[0], "values.Age").Int())

	require.NoError(t, a.query(ctx, "User", &queryParams{
		members: []string{"Name"},
		order:   []string{"-Age"},
		limit:   1,
		offset:  1,
	}))
	ls = lines(out)
	require.Len(t, ls, 1)
	assert.Equal(t, "Bob", gjson.Get(ls[0], "values.Name").String())

	require.NoError(t, a.count(ctx, "User", ""))
	assert.Equal(t, []string{"2"}, lines(out))

	g1 := meshkey.New()

	require.NoError(t, a.link(ctx, "Group", "User", g1.String(), []string{alice.String(), bob.String()}, false))
	assert.Equal(t, []string{"2"}, lines(out))

	require.NoError(t, a.link(ctx, "User", "Group", g1.String(), []string{bob.String()}, true))
	assert.Equal(t, []string{"1"}, lines(out))

	require.NoError(t, a.items(ctx, "User", "Group", g1.String()))
	assert.Equal(t, []string{`"` + alice.String() + `"`}, lines(out))

	require.NoError(t, a.deleteValues(ctx, "User", `{"op": "eq", "property": "Name", "value": "Bob"}`))
	assert.Equal(t, []string{"1"}, lines(out))

	err := a.deleteValues(ctx, "User", "")
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeMissingPredicate), "%v", err)

	require.NoError(t, a.deleteDomain(ctx, "User"))

	require.NoError(t, a.domains(ctx))
	ls = lines(out)
	require.Len(t, ls, 1)
	assert.Equal(t, "Group", gjson.Get(ls[0], "name").String())

	err = a.count(ctx, "User", "")
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeDomainDoesNotExist), "%v", err)
}

func TestParseObject(t *testing.T) {
	t.Parallel()

	d, err := readDescriptor(strings.NewReader(usersYAML))
	require.NoError(t, err)

	_, err = parseObject(d, `[1, 2]`)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeInvalidValue), "%v", err)

	obj, err := parseObject(d, `{"Name": "Alice"}`)
	require.NoError(t, err)
	assert.True(t, obj.Key.IsNull())
	assert.Equal(t, "Alice", obj.Values["Name"])

	_, err = parseObject(d, `{"_key": "nope"}`)
	assert.True(t, mesherrors.ErrorCodeIs(err, mesherrors.ErrorCodeMalformedKey), "%v", err)
}
