// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package sqlstore implements the storage contracts on postgres.

Entity attributes map flat onto table columns under their json names, the
table is named after the resource. Prefetch plans execute as select-in
queries, one per relation level, so an eagerly loaded list costs a fixed
number of round-trips regardless of its size. Every mutation runs in its
own transaction and commits exactly once.
*/
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/core/csql"
	"github.com/crudkit-tech/crudkit/storage"
)

// Store is a postgres storage session over a csql handle.
type Store struct {
	db *csql.DB
}

// New creates a store over the given database handle.
func New(db *csql.DB) *Store {
	if db == nil {
		panic("db is missing")
	}
	return &Store{db: db}
}

func (s *Store) tableName(t *storage.Type) string {
	return fmt.Sprintf("%s.\"%s\"", s.db.Schema, t.Name)
}

func columnList(t *storage.Type) string {
	names := t.AttributeNames()
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = "\"" + name + "\""
	}
	return strings.Join(quoted, ", ")
}

// columnType maps a Go attribute type to its postgres column type.
func columnType(value interface{}) string {
	switch value.(type) {
	case uuid.UUID:
		return "uuid"
	case string:
		return "text"
	case int, int32, int64:
		return "bigint"
	case bool:
		return "boolean"
	case float32, float64:
		return "double precision"
	case time.Time:
		return "timestamp with time zone"
	default:
		return "json"
	}
}

// EnsureTable creates the table for the given type if it does not exist yet.
// Integer primary keys become bigserial, uuid primary keys get a generated
// default. This covers examples and tests; production deployments manage
// their schema with proper migrations.
func (s *Store) EnsureTable(ctx context.Context, t *storage.Type) error {
	prototype := t.New()
	var columns []string
	for _, name := range t.AttributeNames() {
		value, _ := storage.Field(prototype, name)
		column := "\"" + name + "\" " + columnType(value)
		if name == t.KeyField() {
			switch value.(type) {
			case int, int32, int64:
				column = "\"" + name + "\" bigserial"
			case uuid.UUID:
				column += " DEFAULT uuid_generate_v4()"
			}
			column += " PRIMARY KEY"
		}
		columns = append(columns, column)
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", s.tableName(t), strings.Join(columns, ", "))
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// scanDest returns one scan destination per attribute, pointing into the
// entity's fields.
func scanDest(t *storage.Type, e storage.Entity) []interface{} {
	rv := reflect.ValueOf(e).Elem()
	rt := rv.Type()
	var dest []interface{}
	for _, name := range t.AttributeNames() {
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			tag := strings.Split(f.Tag.Get("json"), ",")[0]
			fieldName := tag
			if fieldName == "" {
				fieldName = f.Name
			}
			if f.PkgPath == "" && tag != "-" && fieldName == name {
				dest = append(dest, rv.Field(i).Addr().Interface())
				break
			}
		}
	}
	return dest
}

func attributeValues(t *storage.Type, e storage.Entity) []interface{} {
	var values []interface{}
	for _, name := range t.AttributeNames() {
		value, _ := storage.Field(e, name)
		values = append(values, value)
	}
	return values
}

// Query starts a new unscoped query for the given type.
func (s *Store) Query(t *storage.Type) storage.Query {
	return query{store: s, t: t}
}

// Get fetches one entity by primary key.
func (s *Store) Get(ctx context.Context, t *storage.Type, key interface{}) (storage.Entity, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE \"%s\" = $1;", columnList(t), s.tableName(t), t.KeyField())
	e := t.New()
	err := s.db.QueryRowContext(ctx, q, key).Scan(scanDest(t, e)...)
	if errors.Is(err, csql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Insert persists a new entity. The primary key is assigned by the database
// and written back; a present external identifier attribute is filled with
// a fresh UUID if empty.
func (s *Store) Insert(ctx context.Context, t *storage.Type, e storage.Entity) error {
	if altKey := t.AltKeyField(); t.HasField(altKey) && storage.FieldIsZero(e, altKey) {
		value, _ := storage.Field(e, altKey)
		switch value.(type) {
		case uuid.UUID:
			if err := storage.SetField(e, altKey, uuid.New()); err != nil {
				return err
			}
		case string:
			if err := storage.SetField(e, altKey, uuid.NewString()); err != nil {
				return err
			}
		}
	}

	key := t.KeyField()
	var columns []string
	var placeholders []string
	var values []interface{}
	for _, name := range t.AttributeNames() {
		if name == key {
			continue
		}
		value, _ := storage.Field(e, name)
		columns = append(columns, "\""+name+"\"")
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(values)+1))
		values = append(values, value)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES(%s) RETURNING \"%s\";",
		s.tableName(t), strings.Join(columns, ", "), strings.Join(placeholders, ", "), key)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	keyDest := scanDest(t, e)[keyIndex(t)]
	if err := tx.QueryRowContext(ctx, q, values...).Scan(keyDest); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func keyIndex(t *storage.Type) int {
	for i, name := range t.AttributeNames() {
		if name == t.KeyField() {
			return i
		}
	}
	return 0
}

// Update persists all attributes of an existing entity.
func (s *Store) Update(ctx context.Context, t *storage.Type, e storage.Entity) error {
	key := t.KeyField()
	var assignments []string
	var values []interface{}
	for _, name := range t.AttributeNames() {
		if name == key {
			continue
		}
		value, _ := storage.Field(e, name)
		values = append(values, value)
		assignments = append(assignments, fmt.Sprintf("\"%s\" = $%d", name, len(values)))
	}
	keyValue, ok := storage.Field(e, key)
	if !ok {
		return core.Configurationf("type %s has no key attribute %s", t.Name, key)
	}
	values = append(values, keyValue)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE \"%s\" = $%d;",
		s.tableName(t), strings.Join(assignments, ", "), key, len(values))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, q, values...)
	if err != nil {
		tx.Rollback()
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if count == 0 {
		tx.Rollback()
		return core.ErrNotFound
	}
	return tx.Commit()
}

// Delete removes an existing entity.
func (s *Store) Delete(ctx context.Context, t *storage.Type, e storage.Entity) error {
	keyValue, _ := storage.Field(e, t.KeyField())
	q := fmt.Sprintf("DELETE FROM %s WHERE \"%s\" = $1;", s.tableName(t), t.KeyField())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, q, keyValue)
	if err != nil {
		tx.Rollback()
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if count == 0 {
		tx.Rollback()
		return core.ErrNotFound
	}
	return tx.Commit()
}

type filter struct {
	field string
	value interface{}
}

type query struct {
	store   *Store
	t       *storage.Type
	filters []filter
	plan    []storage.Prefetch
}

// Filter restricts the result to records whose attribute equals value.
func (q query) Filter(field string, value interface{}) storage.Query {
	q.filters = append(append([]filter{}, q.filters...), filter{field: field, value: value})
	return q
}

// Prefetch attaches an eager-load plan to the query.
func (q query) Prefetch(plan ...storage.Prefetch) storage.Query {
	q.plan = append(append([]storage.Prefetch{}, q.plan...), plan...)
	return q
}

// All executes the query and returns all matching entities.
func (q query) All(ctx context.Context) ([]storage.Entity, error) {
	sqlQuery := fmt.Sprintf("SELECT %s FROM %s", columnList(q.t), q.store.tableName(q.t))
	var values []interface{}
	var conditions []string
	for _, f := range q.filters {
		if !q.t.HasField(f.field) {
			return nil, core.Configurationf("type %s has no attribute %q", q.t.Name, f.field)
		}
		values = append(values, f.value)
		conditions = append(conditions, fmt.Sprintf("\"%s\" = $%d", f.field, len(values)))
	}
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlQuery += fmt.Sprintf(" ORDER BY \"%s\";", q.t.KeyField())

	result, err := q.store.selectEntities(ctx, q.t, sqlQuery, values...)
	if err != nil {
		return nil, err
	}
	for _, p := range q.plan {
		if err := q.store.load(ctx, q.t, result, p.Relations()); err != nil {
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
		return nil, fmt.Errorf("sqlstore: multiple %s rows match", q.t.Name)
	}
	return all[0], nil
}

func (s *Store) selectEntities(ctx context.Context, t *storage.Type, sqlQuery string, values ...interface{}) ([]storage.Entity, error) {
	rows, err := s.db.QueryContext(ctx, sqlQuery, values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []storage.Entity
	for rows.Next() {
		e := t.New()
		if err := rows.Scan(scanDest(t, e)...); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// load resolves one prefetch chain level by level with select-in queries.
// The entities loaded on one level become the parents of the next.
func (s *Store) load(ctx context.Context, t *storage.Type, parents []storage.Entity, chain []string) error {
	if len(chain) == 0 || len(parents) == 0 {
		return nil
	}
	rel, ok := t.Relation(chain[0])
	if !ok {
		return core.Configurationf("type %s has no relation %q", t.Name, chain[0])
	}

	var next []storage.Entity
	var err error
	if rel.Many {
		next, err = s.loadToMany(ctx, t, parents, rel)
	} else {
		next, err = s.loadToOne(ctx, t, parents, rel)
	}
	if err != nil {
		return err
	}
	return s.load(ctx, rel.Target, next, chain[1:])
}

func (s *Store) loadToOne(ctx context.Context, t *storage.Type, parents []storage.Entity, rel storage.Relation) ([]storage.Entity, error) {
	var fks []interface{}
	for _, parent := range parents {
		fk, ok := storage.Field(parent, rel.Field)
		if ok && !reflect.ValueOf(fk).IsZero() {
			fks = append(fks, fk)
		}
	}
	if len(fks) == 0 {
		return nil, nil
	}

	target := rel.Target
	sqlQuery := fmt.Sprintf("SELECT %s FROM %s WHERE \"%s\" = ANY($1);",
		columnList(target), s.tableName(target), target.KeyField())
	children, err := s.selectEntities(ctx, target, sqlQuery, pq.Array(fks))
	if err != nil {
		return nil, err
	}

	byKey := map[string]storage.Entity{}
	for _, child := range children {
		key, _ := storage.Field(child, target.KeyField())
		byKey[fmt.Sprintf("%v", key)] = child
	}
	var next []storage.Entity
	for _, parent := range parents {
		fk, ok := storage.Field(parent, rel.Field)
		if !ok || reflect.ValueOf(fk).IsZero() {
			continue
		}
		child, ok := byKey[fmt.Sprintf("%v", fk)]
		if !ok {
			continue
		}
		if err := storage.SetRelation(parent, rel, []storage.Entity{child}); err != nil {
			return nil, err
		}
		next = append(next, child)
	}
	return next, nil
}

func (s *Store) loadToMany(ctx context.Context, t *storage.Type, parents []storage.Entity, rel storage.Relation) ([]storage.Entity, error) {
	var parentKeys []interface{}
	for _, parent := range parents {
		key, ok := storage.Field(parent, t.KeyField())
		if !ok {
			return nil, core.Configurationf("type %s has no key attribute %s", t.Name, t.KeyField())
		}
		parentKeys = append(parentKeys, key)
	}

	target := rel.Target
	sqlQuery := fmt.Sprintf("SELECT %s FROM %s WHERE \"%s\" = ANY($1) ORDER BY \"%s\";",
		columnList(target), s.tableName(target), rel.Field, target.KeyField())
	children, err := s.selectEntities(ctx, target, sqlQuery, pq.Array(parentKeys))
	if err != nil {
		return nil, err
	}

	byParent := map[string][]storage.Entity{}
	for _, child := range children {
		fk, _ := storage.Field(child, rel.Field)
		ks := fmt.Sprintf("%v", fk)
		byParent[ks] = append(byParent[ks], child)
	}
	for _, parent := range parents {
		key, _ := storage.Field(parent, t.KeyField())
		if err := storage.SetRelation(parent, rel, byParent[fmt.Sprintf("%v", key)]); err != nil {
			return nil, err
		}
	}
	return children, nil
}

var _ storage.Session = (*Store)(nil)
