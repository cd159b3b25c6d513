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

package registry

import (
	"encoding/json"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/util/lazyerrors"
)

// Catalog domain stores descriptors of all other domains.
const (
	catalogName = "_mesh_domains"

	memberName       = "name"
	memberKind       = "kind"
	memberDescriptor = "descriptor"
)

// Kinds of catalog entries.
const (
	kindValue = "value"
	kindLink  = "link"
)

// catalogKey is the fixed key of the catalog domain.
var catalogKey = meshkey.MustParse("0c6d2f8a-3b51-4e7a-9d20-5f8e1a4c7b93")

// catalogDomain returns the catalog domain descriptor.
func catalogDomain() *domain.MeshDomain {
	return domain.New(
		catalogKey,
		catalogName,
		domain.Member{Name: memberName, Type: domain.TypeString},
		domain.Member{Name: memberKind, Type: domain.TypeString},
		domain.Member{Name: memberDescriptor, Type: domain.TypeString},
	)
}

// kindOf returns catalog kind of the domain.
func kindOf(d *domain.MeshDomain) string {
	if d.IsLink() {
		return kindLink
	}

	return kindValue
}

// catalogValues returns catalog member values for the domain.
func catalogValues(d *domain.MeshDomain) (map[string]any, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return map[string]any{
		memberName:       d.Name,
		memberKind:       kindOf(d),
		memberDescriptor: string(b),
	}, nil
}

// fromCatalog decodes a catalog object.
func fromCatalog(obj *domain.Object) (*domain.MeshDomain, error) {
	s, _ := obj.Values[memberDescriptor].(string)

	var d domain.MeshDomain
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, lazyerrors.Error(err)
	}

	d.Key = obj.Key

	return &d, nil
}
