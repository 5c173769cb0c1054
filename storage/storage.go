// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package storage defines the contracts between the CRUD views and the
underlying storage engine.

The CRUD layer never talks SQL itself; it builds queries through the Query
interface and performs mutations through the Session interface. Any store
that implements those two interfaces can serve CRUD endpoints. The package
ships with two implementations: memstore (in-memory, for tests and
prototyping) and sqlstore (postgres).

Entities are plain struct pointers. Their fields surface to the REST layer
under their json tag names. A Type descriptor registers the struct together
with its resource name, its primary key field and its navigable relations.
*/
package storage

import (
	"context"
	"reflect"
)

// Entity is an application-defined persisted record, always a struct pointer.
type Entity interface{}

// Relation declares a navigable relation between two entity types. Relations
// are the units the prefetch plan is built from.
type Relation struct {
	// Name is the json name of the relation field on the owning struct.
	Name string
	// Target is the related entity type.
	Target *Type
	// Field is the json name of the foreign key attribute. For to-one
	// relations it lives on the owning type, for to-many relations on the
	// target type.
	Field string
	// Many marks a to-many relation.
	Many bool
}

// Type describes an entity type to the storage layer.
//
// The zero fields have sensible defaults: Key defaults to "id". Prototype is
// mandatory and should be a nil pointer of the entity struct, for example
// (*Pet)(nil). Capability interfaces for access control are detected on the
// prototype.
type Type struct {
	// Name is the singular resource name, e.g. "pet".
	Name string
	// Prototype is a nil pointer of the entity struct.
	Prototype Entity
	// Key is the json name of the primary key field.
	Key string
	// AltKey is the json name of the server-assigned external identifier
	// attribute. Stores fill it with a fresh UUID on insert when the
	// entity has such a field and it is empty. Defaults to "extid".
	AltKey string
	// Relations declares the navigable relations of this type.
	Relations []Relation
}

// KeyField returns the json name of the primary key field.
func (t *Type) KeyField() string {
	if t.Key == "" {
		return "id"
	}
	return t.Key
}

// AltKeyField returns the json name of the external identifier field.
func (t *Type) AltKeyField() string {
	if t.AltKey == "" {
		return "extid"
	}
	return t.AltKey
}

// New creates a new zero-valued instance of this entity type.
func (t *Type) New() Entity {
	return reflect.New(t.structType()).Interface()
}

// HasField returns true if the entity struct has an attribute with the
// given json name.
func (t *Type) HasField(name string) bool {
	_, ok := structFieldByName(t.structType(), name)
	return ok
}

// Relation returns the declared relation with the given name.
func (t *Type) Relation(name string) (Relation, bool) {
	for _, rel := range t.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relation{}, false
}

func (t *Type) isRelationField(name string) bool {
	_, ok := t.Relation(name)
	return ok
}

// AttributeNames returns the json names of all persisted attributes of this
// type, in struct declaration order. Relation fields are not attributes.
func (t *Type) AttributeNames() []string {
	rt := t.structType()
	var names []string
	for i := 0; i < rt.NumField(); i++ {
		name, ok := jsonName(rt.Field(i))
		if !ok || t.isRelationField(name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (t *Type) structType() reflect.Type {
	if t.Prototype == nil {
		panic("storage: type " + t.Name + " has no prototype")
	}
	rt := reflect.TypeOf(t.Prototype)
	if rt.Kind() != reflect.Ptr || rt.Elem().Kind() != reflect.Struct {
		panic("storage: prototype of " + t.Name + " must be a struct pointer")
	}
	return rt.Elem()
}

// Query is a deferred read operation on a single entity type. Implementations
// return a new query from every builder call; a query value is never mutated
// in place and can therefore be shared.
type Query interface {
	// Filter restricts the result to records whose attribute equals value.
	Filter(field string, value interface{}) Query
	// Prefetch attaches an eager-load plan to the query. Related entities
	// named by the plan are loaded as part of query execution instead of
	// on first access.
	Prefetch(plan ...Prefetch) Query
	// All executes the query and returns all matching entities.
	All(ctx context.Context) ([]Entity, error)
	// One executes the query and returns exactly one matching entity,
	// or core.ErrNotFound if there is none.
	One(ctx context.Context) (Entity, error)
}

// Session is the process-wide handle to the storage engine. Implementations
// must be safe for concurrent use; the transactional scope of each mutation
// is internal to the call and every mutation commits exactly once.
type Session interface {
	// Query starts a new unscoped query for the given type.
	Query(t *Type) Query
	// Get fetches one entity by primary key, or core.ErrNotFound.
	Get(ctx context.Context, t *Type, key interface{}) (Entity, error)
	// Insert persists a new entity and commits. The store assigns the
	// primary key and writes it back to the entity.
	Insert(ctx context.Context, t *Type, e Entity) error
	// Update persists all attributes of an existing entity and commits.
	Update(ctx context.Context, t *Type, e Entity) error
	// Delete removes an existing entity and commits.
	Delete(ctx context.Context, t *Type, e Entity) error
}
