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

// Package meshkey provides MeshKey, the identifier of domains, objects and link domain pairs.
package meshkey

import (
	"bytes"
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"

	"github.com/google/uuid"

	"github.com/meshdb/meshdb/internal/mesherrors"
)

// MeshKey identifies a domain, an object within a domain, or a link domain pair.
//
// The zero value means "no key".
// Null is a valid key that is distinct from the zero value;
// an unsaved object may carry it.
type MeshKey struct {
	u     uuid.UUID
	valid bool
}

// Null is the reserved null key sentinel.
var Null = MeshKey{valid: true}

// New returns a new random key.
func New() MeshKey {
	return MeshKey{u: uuid.New(), valid: true}
}

// Derive returns a deterministic key for the given namespace key and name parts.
//
// The same arguments always produce the same key.
func Derive(ns MeshKey, parts ...string) MeshKey {
	var name []byte
	for i, p := range parts {
		if i > 0 {
			name = append(name, 0)
		}
		name = append(name, p...)
	}

	return MeshKey{u: uuid.NewSHA1(ns.u, name), valid: true}
}

// Parse parses the canonical text representation of a key.
//
// Malformed text (including an empty string) is an error with code MalformedKey;
// it never defaults to Null.
func Parse(s string) (MeshKey, error) {
	if len(s) != 36 {
		return MeshKey{}, mesherrors.NewWithArgument(
			mesherrors.ErrorCodeMalformedKey,
			fmt.Errorf("invalid key length %d", len(s)),
			s,
		)
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return MeshKey{}, mesherrors.NewWithArgument(mesherrors.ErrorCodeMalformedKey, err, s)
	}

	return MeshKey{u: u, valid: true}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) MeshKey {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return k
}

// FromUUID returns a key for the given UUID.
func FromUUID(u uuid.UUID) MeshKey {
	return MeshKey{u: u, valid: true}
}

// UUID returns the underlying UUID.
func (k MeshKey) UUID() uuid.UUID {
	return k.u
}

// IsZero returns true for the zero value (no key).
func (k MeshKey) IsZero() bool {
	return !k.valid
}

// IsNull returns true if k is the null key or no key at all.
func (k MeshKey) IsNull() bool {
	return k.u == uuid.Nil
}

// String returns the canonical lowercase hyphenated representation.
//
// The zero value is represented as an empty string.
func (k MeshKey) String() string {
	if !k.valid {
		return ""
	}

	return k.u.String()
}

// GoString implements fmt.GoStringer.
func (k MeshKey) GoString() string {
	if !k.valid {
		return "meshkey.MeshKey{}"
	}

	return fmt.Sprintf("meshkey.MustParse(%q)", k.u.String())
}

// Compare returns -1, 0 or +1 comparing keys bytewise.
// The zero value sorts first.
func (k MeshKey) Compare(other MeshKey) int {
	switch {
	case k.valid == other.valid:
		return bytes.Compare(k.u[:], other.u[:])
	case !k.valid:
		return -1
	default:
		return 1
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k MeshKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
//
// Empty text decodes into the zero value.
func (k *MeshKey) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = MeshKey{}
		return nil
	}

	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}

// Value implements driver.Valuer.
//
// The zero value is stored as NULL.
func (k MeshKey) Value() (driver.Value, error) {
	if !k.valid {
		return nil, nil
	}

	return k.u.String(), nil
}

// Scan implements sql.Scanner.
func (k *MeshKey) Scan(src any) error {
	switch src := src.(type) {
	case nil:
		*k = MeshKey{}
		return nil
	case string:
		return k.UnmarshalText([]byte(src))
	case []byte:
		return k.UnmarshalText(src)
	default:
		return mesherrors.NewWithArgument(
			mesherrors.ErrorCodeMalformedKey,
			fmt.Errorf("can't scan %T into key", src),
			src,
		)
	}
}

// check interfaces
var (
	_ fmt.Stringer             = MeshKey{}
	_ encoding.TextMarshaler   = MeshKey{}
	_ encoding.TextUnmarshaler = (*MeshKey)(nil)
	_ driver.Valuer            = MeshKey{}
	_ sql.Scanner              = (*MeshKey)(nil)
)
