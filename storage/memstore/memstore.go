// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package memstore implements the storage contracts with plain in-process maps.

The store keeps entities in insertion order and hands out shallow copies, so
callers never alias store internals and a mutation becomes visible only
through Update. It is the store of choice for unit tests and prototyping;
production deployments use sqlstore.
*/
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/storage"
)

// Store is an in-memory storage session. The zero value is not usable,
// create stores with New().
type Store struct {
	mutex   sync.RWMutex
	tables  map[string]*table
	queries int
	serial  int64
}

type table struct {
	order []string
	rows  map[string]storage.Entity
}

// New creates an empty store.
func New() *Store {
	return &Store{tables: map[string]*table{}}
}

// Queries returns the number of executed read queries. Eager loads triggered
// by a prefetch plan count as part of their query, which is what makes
// prefetch effectiveness observable in tests.
func (s *Store) Queries() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.queries
}

func (s *Store) table(t *storage.Type) *table {
	tbl, ok := s.tables[t.Name]
	if !ok {
		tbl = &table{rows: map[string]storage.Entity{}}
		s.tables[t.Name] = tbl
	}
	return tbl
}

// keyString normalizes a key or filter value for comparison. URL parameters
// arrive as strings and JSON numbers as float64, while entities hold typed
// fields; comparing printed representations makes these meet.
func keyString(value interface{}) string {
	return fmt.Sprintf("%v", value)
}

// Query starts a new unscoped query for the given type.
func (s *Store) Query(t *storage.Type) storage.Query {
	return query{store: s, t: t}
}

// Get fetches one entity by primary key.
func (s *Store) Get(ctx context.Context, t *storage.Type, key interface{}) (storage.Entity, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.queries++
	row, ok := s.table(t).rows[keyString(key)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return storage.Clone(row), nil
}

// Insert persists a new entity. The primary key is assigned by the store;
// a present external identifier attribute is filled with a fresh UUID if
// empty.
func (s *Store) Insert(ctx context.Context, t *storage.Type, e storage.Entity) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if storage.FieldIsZero(e, t.KeyField()) {
		if err := s.assignKey(t, e); err != nil {
			return err
		}
	}
	if altKey := t.AltKeyField(); t.HasField(altKey) && storage.FieldIsZero(e, altKey) {
		if err := assignUUID(e, altKey); err != nil {
			return err
		}
	}

	key, _ := storage.Field(e, t.KeyField())
	ks := keyString(key)
	tbl := s.table(t)
	if _, ok := tbl.rows[ks]; ok {
		return fmt.Errorf("memstore: duplicate key %s for %s", ks, t.Name)
	}
	tbl.rows[ks] = stripRelations(t, storage.Clone(e))
	tbl.order = append(tbl.order, ks)
	return nil
}

// Update persists all attributes of an existing entity.
func (s *Store) Update(ctx context.Context, t *storage.Type, e storage.Entity) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key, ok := storage.Field(e, t.KeyField())
	if !ok {
		return core.Configurationf("type %s has no key attribute %s", t.Name, t.KeyField())
	}
	ks := keyString(key)
	tbl := s.table(t)
	if _, ok := tbl.rows[ks]; !ok {
		return core.ErrNotFound
	}
	tbl.rows[ks] = stripRelations(t, storage.Clone(e))
	return nil
}

// Delete removes an existing entity.
func (s *Store) Delete(ctx context.Context, t *storage.Type, e storage.Entity) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key, _ := storage.Field(e, t.KeyField())
	ks := keyString(key)
	tbl := s.table(t)
	if _, ok := tbl.rows[ks]; !ok {
		return core.ErrNotFound
	}
	delete(tbl.rows, ks)
	for i, k := range tbl.order {
		if k == ks {
			tbl.order = append(tbl.order[:i], tbl.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) assignKey(t *storage.Type, e storage.Entity) error {
	value, _ := storage.Field(e, t.KeyField())
	switch value.(type) {
	case uuid.UUID:
		return storage.SetField(e, t.KeyField(), uuid.New())
	case string:
		return storage.SetField(e, t.KeyField(), uuid.NewString())
	case int, int32, int64:
		s.serial++
		return storage.SetField(e, t.KeyField(), s.serial)
	default:
		return fmt.Errorf("memstore: cannot assign key of type %T for %s", value, t.Name)
	}
}

func assignUUID(e storage.Entity, name string) error {
	value, _ := storage.Field(e, name)
	switch value.(type) {
	case uuid.UUID:
		return storage.SetField(e, name, uuid.New())
	case string:
		return storage.SetField(e, name, uuid.NewString())
	}
	return nil
}

// stored rows never carry loaded relations, otherwise stale eager loads
// would resurface in later unprefetched reads
func stripRelations(t *storage.Type, e storage.Entity) storage.Entity {
	for _, rel := range t.Relations {
		storage.SetRelation(e, rel, nil)
	}
	return e
}

type filter struct {
	field string
	value string
}

type query struct {
	store   *Store
	t       *storage.Type
	filters []filter
	plan    []storage.Prefetch
}

// Filter restricts the result to records whose attribute equals value.
func (q query) Filter(field string, value interface{}) storage.Query {
	q.filters = append(append([]filter{}, q.filters...), filter{field: field, value: keyString(value)})
	return q
}

// Prefetch attaches an eager-load plan to the query.
func (q query) Prefetch(plan ...storage.Prefetch) storage.Query {
	q.plan = append(append([]storage.Prefetch{}, q.plan...), plan...)
	return q
}

// All executes the query and returns all matching entities.
func (q query) All(ctx context.Context) ([]storage.Entity, error) {
	q.store.mutex.Lock()
	defer q.store.mutex.Unlock()
	q.store.queries++

	tbl := q.store.table(q.t)
	var result []storage.Entity
row_loop:
	for _, key := range tbl.order {
		row := tbl.rows[key]
		for _, f := range q.filters {
			value, ok := storage.Field(row, f.field)
			if !ok || keyString(value) != f.value {
				continue row_loop
			}
		}
		result = append(result, storage.Clone(row))
	}

	for _, p := range q.plan {
		if err := q.store.load(q.t, result, p.Relations()); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// One executes the query and returns exactly one matching entity.
func (q query) One(ctx context.Context) (storage.Entity, error) {
	all, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, core.ErrNotFound
	}
	if len(all) > 1 {
		return nil, fmt.Errorf("memstore: multiple %s rows match", q.t.Name)
	}
	return all[0], nil
}

// load resolves one prefetch chain level by level. The entities loaded on
// one level become the parents of the next.
func (s *Store) load(t *storage.Type, parents []storage.Entity, chain []string) error {
	if len(chain) == 0 || len(parents) == 0 {
		return nil
	}
	rel, ok := t.Relation(chain[0])
	if !ok {
		return core.Configurationf("type %s has no relation %q", t.Name, chain[0])
	}

	var next []storage.Entity
	for _, parent := range parents {
		children, err := s.related(t, parent, rel)
		if err != nil {
			return err
		}
		if err := storage.SetRelation(parent, rel, children); err != nil {
			return err
		}
		next = append(next, children...)
	}
	return s.load(rel.Target, next, chain[1:])
}

func (s *Store) related(t *storage.Type, parent storage.Entity, rel storage.Relation) ([]storage.Entity, error) {
	tbl := s.table(rel.Target)
	if !rel.Many {
		fk, ok := storage.Field(parent, rel.Field)
		if !ok || reflect.ValueOf(fk).IsZero() {
			return nil, nil
		}
		row, ok := tbl.rows[keyString(fk)]
		if !ok {
			return nil, nil
		}
		return []storage.Entity{storage.Clone(row)}, nil
	}

	parentKey, ok := storage.Field(parent, t.KeyField())
	if !ok {
		return nil, core.Configurationf("type %s has no key attribute %s", t.Name, t.KeyField())
	}
	want := keyString(parentKey)
	var children []storage.Entity
	for _, key := range tbl.order {
		row := tbl.rows[key]
		if fk, ok := storage.Field(row, rel.Field); ok && keyString(fk) == want {
			children = append(children, storage.Clone(row))
		}
	}
	return children, nil
}
