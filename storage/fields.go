// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package storage

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/goccy/go-json"
)

// jsonName returns the json name of a struct field, or false if the field
// is unexported or excluded from serialization.
func jsonName(f reflect.StructField) (string, bool) {
	if f.PkgPath != "" { // unexported
		return "", false
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	name := strings.Split(tag, ",")[0]
	if name == "" {
		name = f.Name
	}
	return name, true
}

func structFieldByName(rt reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if n, ok := jsonName(f); ok && n == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// Field returns the value of the attribute with the given json name, or
// false if the entity has no such attribute.
func Field(e Entity, name string) (interface{}, bool) {
	rv := reflect.ValueOf(e)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, false
	}
	rv = rv.Elem()
	f, ok := structFieldByName(rv.Type(), name)
	if !ok {
		return nil, false
	}
	return rv.FieldByIndex(f.Index).Interface(), true
}

// SetField assigns value to the attribute with the given json name.
func SetField(e Entity, name string, value interface{}) error {
	rv := reflect.ValueOf(e).Elem()
	f, ok := structFieldByName(rv.Type(), name)
	if !ok {
		return fmt.Errorf("no attribute %q on %s", name, rv.Type())
	}
	fv := rv.FieldByIndex(f.Index)
	v := reflect.ValueOf(value)
	if !v.Type().AssignableTo(fv.Type()) {
		if !v.Type().ConvertibleTo(fv.Type()) {
			return fmt.Errorf("cannot assign %s to attribute %q of %s", v.Type(), name, rv.Type())
		}
		v = v.Convert(fv.Type())
	}
	fv.Set(v)
	return nil
}

// FieldIsZero returns true if the attribute with the given json name holds
// its type's zero value. Unknown attributes count as zero.
func FieldIsZero(e Entity, name string) bool {
	value, ok := Field(e, name)
	if !ok {
		return true
	}
	return reflect.ValueOf(value).IsZero()
}

// Attributes returns all persisted attributes of the entity as a map from
// json name to value. Relation fields are not included.
func Attributes(t *Type, e Entity) map[string]interface{} {
	attrs := map[string]interface{}{}
	for _, name := range t.AttributeNames() {
		if value, ok := Field(e, name); ok {
			attrs[name] = value
		}
	}
	return attrs
}

// ApplyAttributes sets the given attributes on the entity. Only persisted
// attributes of the type are applied; relation fields and unknown keys are
// silently ignored. Attributes listed in protect are never overwritten;
// callers use this for the primary key and other server-assigned fields.
//
// Values travel through a JSON round-trip, so the usual decoding
// conversions apply (json numbers into integer fields and so on).
func ApplyAttributes(t *Type, e Entity, attrs map[string]interface{}, protect ...string) error {
	allowed := map[string]bool{}
	for _, name := range t.AttributeNames() {
		allowed[name] = true
	}
	for _, p := range protect {
		delete(allowed, p)
	}
	filtered := map[string]interface{}{}
	for key, value := range attrs {
		if allowed[key] {
			filtered[key] = value
		}
	}
	data, err := json.MarshalWithOption(filtered, json.DisableHTMLEscape())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, e)
}

// SetRelation assigns eagerly loaded related entities to the relation field
// with the given json name. For to-one relations, children holds at most one
// entity. An empty children resets the field to its zero value.
func SetRelation(e Entity, rel Relation, children []Entity) error {
	rv := reflect.ValueOf(e).Elem()
	f, ok := structFieldByName(rv.Type(), rel.Name)
	if !ok {
		return fmt.Errorf("no relation field %q on %s", rel.Name, rv.Type())
	}
	fv := rv.FieldByIndex(f.Index)
	if len(children) == 0 {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	if !rel.Many {
		v := reflect.ValueOf(children[0])
		if !v.Type().AssignableTo(fv.Type()) {
			return fmt.Errorf("cannot assign %s to relation %q of %s", v.Type(), rel.Name, rv.Type())
		}
		fv.Set(v)
		return nil
	}
	if fv.Kind() != reflect.Slice {
		return fmt.Errorf("relation field %q of %s is not a slice", rel.Name, rv.Type())
	}
	slice := reflect.MakeSlice(fv.Type(), 0, len(children))
	for _, child := range children {
		v := reflect.ValueOf(child)
		if !v.Type().AssignableTo(fv.Type().Elem()) {
			return fmt.Errorf("cannot assign %s to relation %q of %s", v.Type(), rel.Name, rv.Type())
		}
		slice = reflect.Append(slice, v)
	}
	fv.Set(slice)
	return nil
}

// RelationLoaded returns true if the relation field with the given json
// name holds loaded entities.
func RelationLoaded(e Entity, name string) bool {
	rv := reflect.ValueOf(e).Elem()
	f, ok := structFieldByName(rv.Type(), name)
	if !ok {
		return false
	}
	return !rv.FieldByIndex(f.Index).IsZero()
}

// Clone returns a shallow copy of the entity.
func Clone(e Entity) Entity {
	rv := reflect.ValueOf(e).Elem()
	cp := reflect.New(rv.Type())
	cp.Elem().Set(rv)
	return cp.Interface()
}
