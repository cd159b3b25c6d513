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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/AlekSi/pointer"
	"github.com/tidwall/gjson"

	"github.com/meshdb/meshdb/internal/domain"
	"github.com/meshdb/meshdb/internal/link"
	"github.com/meshdb/meshdb/internal/mesherrors"
	"github.com/meshdb/meshdb/internal/meshkey"
	"github.com/meshdb/meshdb/internal/registry"
	"github.com/meshdb/meshdb/internal/store"
	"github.com/meshdb/meshdb/internal/util/lazyerrors"
	"github.com/meshdb/meshdb/internal/where"
)

// app runs CLI commands against the domain registry.
type app struct {
	reg   *registry.Service
	actor meshkey.MeshKey
	out   io.Writer
}

// queryParams represents query command flags.
type queryParams struct {
	where   string
	members []string
	order   []string
	limit   int64
	offset  int64
}

// lookup returns a domain by key or name.
func (a *app) lookup(ctx context.Context, s string) (*domain.MeshDomain, error) {
	var d *domain.MeshDomain
	var err error

	if k, perr := meshkey.Parse(s); perr == nil {
		d, err = a.reg.Domain(ctx, k)
	} else {
		d, err = a.reg.DomainByName(ctx, s)
	}

	if err != nil {
		return nil, err
	}

	if d == nil {
		return nil, mesherrors.NewWithArgument(
			mesherrors.ErrorCodeDomainDoesNotExist,
			fmt.Errorf("domain %q does not exist", s),
			s,
		)
	}

	return d, nil
}

// print writes v as a single JSON line.
func (a *app) print(v any) error {
	if err := json.NewEncoder(a.out).Encode(v); err != nil {
		return lazyerrors.Error(err)
	}

	return nil
}

// domains lists value and link domains.
func (a *app) domains(ctx context.Context) error {
	values, err := a.reg.ValueDomains(ctx)
	if err != nil {
		return err
	}

	links, err := a.reg.LinkDomains(ctx)
	if err != nil {
		return err
	}

	for _, d := range append(values, links...) {
		if err = a.print(d); err != nil {
			return err
		}
	}

	return nil
}

// createDomain creates a domain from a YAML description.
func (a *app) createDomain(ctx context.Context, r io.Reader, update bool) error {
	d, err := readDescriptor(r)
	if err != nil {
		return err
	}

	if update {
		err = a.reg.UpdateDomain(ctx, d)
	} else {
		err = a.reg.CreateDomain(ctx, d)
	}

	if err != nil {
		return err
	}

	return a.print(d)
}

// deleteDomain deletes a domain by key or name.
func (a *app) deleteDomain(ctx context.Context, name string) error {
	d, err := a.lookup(ctx, name)
	if err != nil {
		return err
	}

	return a.reg.DeleteDomain(ctx, d.Key)
}

// valueService returns the value service of the domain with the given key or name.
func (a *app) valueService(ctx context.Context, name string) (store.DomainValueStore, error) {
	d, err := a.lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	return a.reg.ValueService(ctx, d)
}

// parseObject parses a JSON object with member values.
//
// Map and set members are expected in the container wire format.
func parseObject(d *domain.MeshDomain, s string) (*domain.Object, error) {
	if !gjson.Valid(s) || !gjson.Parse(s).IsObject() {
		return nil, mesherrors.NewWithArgument(
			mesherrors.ErrorCodeInvalidValue,
			fmt.Errorf("invalid JSON object %q", s),
			s,
		)
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, lazyerrors.Error(err)
	}

	obj := domain.NewObject(values)

	for _, m := range d.Members {
		if m.Type != domain.TypeMap && m.Type != domain.TypeSet {
			continue
		}

		raw := gjson.Get(s, gjson.Escape(m.Name))
		if !raw.IsObject() {
			continue
		}

		c, _, err := domain.UnmarshalContainer([]byte(raw.Raw), domain.KindOf(m.Type), m.Of)
		if err != nil {
			return nil, err
		}

		obj.Values[m.Name] = c
	}

	if k, ok := values[store.KeyProperty].(string); ok {
		key, err := meshkey.Parse(k)
		if err != nil {
			return nil, err
		}

		obj.Key = key
		delete(obj.Values, store.KeyProperty)
	}

	return obj, nil
}

// insert inserts objects and prints their keys.
func (a *app) insert(ctx context.Context, name string, objects []string) error {
	d, err := a.lookup(ctx, name)
	if err != nil {
		return err
	}

	vs, err := a.reg.ValueService(ctx, d)
	if err != nil {
		return err
	}

	objs := make([]*domain.Object, len(objects))

	for i, s := range objects {
		if objs[i], err = parseObject(d, s); err != nil {
			return err
		}
	}

	if err = vs.InsertValues(ctx, a.actor, objs...); err != nil {
		return err
	}

	for _, obj := range objs {
		if err = a.print(obj.Key); err != nil {
			return err
		}
	}

	return nil
}

// parseWhere parses a JSON predicate; empty string means no predicate.
func parseWhere(s string) (*where.Node, error) {
	if s == "" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var w where.Node
	if err := dec.Decode(&w); err != nil {
		return nil, mesherrors.NewWithArgument(mesherrors.ErrorCodeInvalidValue, err, s)
	}

	return &w, nil
}

// query prints matching objects.
func (a *app) query(ctx context.Context, name string, p *queryParams) error {
	vs, err := a.valueService(ctx, name)
	if err != nil {
		return err
	}

	w, err := parseWhere(p.where)
	if err != nil {
		return err
	}

	req := &store.ReadRequest{
		Members: p.members,
		Offset:  p.offset,
	}

	if p.limit >= 0 {
		req.Limit = pointer.ToInt64(p.limit)
	}

	for _, o := range p.order {
		if m, ok := strings.CutPrefix(o, "-"); ok {
			req.OrderBy = append(req.OrderBy, store.Order{Member: m, Descending: true})
			continue
		}

		req.OrderBy = append(req.OrderBy, store.Order{Member: o})
	}

	objs, err := vs.QueryValues(ctx, a.actor, w, req)
	if err != nil {
		return err
	}

	for _, obj := range objs {
		if err = a.print(obj); err != nil {
			return err
		}
	}

	return nil
}

// count prints the number of matching objects.
func (a *app) count(ctx context.Context, name, predicate string) error {
	vs, err := a.valueService(ctx, name)
	if err != nil {
		return err
	}

	w, err := parseWhere(predicate)
	if err != nil {
		return err
	}

	n, err := vs.QueryCount(ctx, a.actor, w)
	if err != nil {
		return err
	}

	return a.print(n)
}

// deleteValues deletes matching objects and prints their number.
func (a *app) deleteValues(ctx context.Context, name, predicate string) error {
	vs, err := a.valueService(ctx, name)
	if err != nil {
		return err
	}

	w, err := parseWhere(predicate)
	if err != nil {
		return err
	}

	n, err := vs.DeleteValues(ctx, a.actor, w)
	if err != nil {
		return err
	}

	return a.print(n)
}

// parseKeys parses object keys.
func parseKeys(ss []string) ([]meshkey.MeshKey, error) {
	res := make([]meshkey.MeshKey, len(ss))

	for i, s := range ss {
		k, err := meshkey.Parse(s)
		if err != nil {
			return nil, err
		}

		res[i] = k
	}

	return res, nil
}

// linkService returns the link service of two domains given by key or name.
func (a *app) linkService(ctx context.Context, da, db string) (*link.Service, error) {
	a1, err := a.lookup(ctx, da)
	if err != nil {
		return nil, err
	}

	b1, err := a.lookup(ctx, db)
	if err != nil {
		return nil, err
	}

	return a.reg.LinkService(ctx, domain.NewLinkedDomains(a1.Key, b1.Key))
}

// link links (or unlinks) items to the set and prints the number of changed links.
func (a *app) link(ctx context.Context, da, db, set string, items []string, unlink bool) error {
	ls, err := a.linkService(ctx, da, db)
	if err != nil {
		return err
	}

	keys, err := parseKeys(append([]string{set}, items...))
	if err != nil {
		return err
	}

	var n int64
	if unlink {
		n, err = ls.Unlink(ctx, a.actor, keys[0], keys[1:]...)
	} else {
		n, err = ls.Link(ctx, a.actor, keys[0], keys[1:]...)
	}

	if err != nil {
		return err
	}

	return a.print(n)
}

// items prints items linked to the set.
func (a *app) items(ctx context.Context, da, db, set string) error {
	ls, err := a.linkService(ctx, da, db)
	if err != nil {
		return err
	}

	keys, err := parseKeys([]string{set})
	if err != nil {
		return err
	}

	items, err := ls.Items(ctx, a.actor, keys[0])
	if err != nil {
		return err
	}

	for _, k := range items {
		if err = a.print(k); err != nil {
			return err
		}
	}

	return nil
}
