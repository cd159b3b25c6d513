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
	"io"

	"gopkg.in/yaml.v3"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/util/lazyerrors"
)

// descriptorNamespace is used to derive keys of domains described without one.
var descriptorNamespace = meshkey.MustParse("8e3b6f21-47c9-4d5a-b0e8-19a2c7d4f536")

// descriptor is a YAML domain description.
//
// Example:
//
//	name: User
//	members:
//	  - name: Name
//	    type: string
//	  - name: Tags
//	    type: set
//	    of: [{type: string}]
//
//nolint:vet // for readability
type descriptor struct {
	Key      meshkey.MeshKey  `yaml:"key"`
	Name     string           `yaml:"name"`
	Generic  bool             `yaml:"generic"`
	Bindings []domain.TypeRef `yaml:"bindings"`
	Members  []domain.Member  `yaml:"members"`
}

// readDescriptor reads and validates a YAML domain description.
//
// A missing key is derived from the name.
func readDescriptor(r io.Reader) (*domain.MeshDomain, error) {
	var desc descriptor

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&desc); err != nil {
		return nil, lazyerrors.Error(err)
	}

	key := desc.Key
	if key.IsNull() {
		key = meshkey.Derive(descriptorNamespace, desc.Name)
	}

	var d *domain.MeshDomain
	if desc.Generic {
		d = domain.NewGeneric(key, desc.Name, desc.Bindings, desc.Members...)
	} else {
		d = domain.New(key, desc.Name, desc.Members...)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return d, nil
}
