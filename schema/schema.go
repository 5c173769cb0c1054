// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package schema validates JSON payloads against a set of JSON schemas,
// addressed by their $id. Views declare a schema ID in their configuration
// and reject non-conforming create and update payloads before any entity
// is touched.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// Validator validates JSON documents against a fixed set of compiled
// schemas. It is created once at startup and read-only afterwards.
type Validator struct {
	compiled map[string]*gojsonschema.Schema
}

// NewValidator compiles the given top-level schemas; every schema must carry
// a $id, which becomes the ID it is addressed by. Top-level schemas cannot
// reference each other; shared definitions go into refs.
func NewValidator(schemas []string, refs []string) (*Validator, error) {
	v := Validator{compiled: make(map[string]*gojsonschema.Schema)}
	for _, document := range schemas {
		var head struct {
			ID string `json:"$id"`
		}
		if err := json.Unmarshal([]byte(document), &head); err != nil {
			return nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, document)
		}
		if head.ID == "" {
			return nil, fmt.Errorf("schema does not contain $id: '%s'", document)
		}
		sl := gojsonschema.NewSchemaLoader()
		for _, ref := range refs {
			if err := sl.AddSchemas(gojsonschema.NewStringLoader(ref)); err != nil {
				return nil, fmt.Errorf("cannot add ref to schema %s: %s", head.ID, err)
			}
		}
		compiled, err := sl.Compile(gojsonschema.NewStringLoader(document))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s: %s", head.ID, err)
		}
		v.compiled[head.ID] = compiled
	}
	return &v, nil
}

// NewValidatorFromFS creates a validator from an embedded filesystem. Json
// files at the root become top-level schemas, json files under refs/ become
// shared references.
func NewValidatorFromFS(schemaFS embed.FS) (*Validator, error) {
	readDir := func(dir string) ([]string, error) {
		var documents []string
		files, err := schemaFS.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot read dir %w", err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			fullPath := f.Name()
			if dir != "." {
				fullPath = dir + "/" + f.Name()
			}
			document, err := schemaFS.ReadFile(fullPath)
			if err != nil {
				return nil, fmt.Errorf("cannot read file '%s' %w", f.Name(), err)
			}
			documents = append(documents, string(document))
		}
		return documents, nil
	}

	schemas, err := readDir(".")
	if err != nil {
		return nil, err
	}
	refs, err := readDir("refs")
	if err != nil {
		return nil, err
	}
	return NewValidator(schemas, refs)
}

// HasSchema returns true if schemaID is known.
func (v *Validator) HasSchema(schemaID string) bool {
	_, ok := v.compiled[schemaID]
	return ok
}

// ValidateString validates the given json document against schemaID. A nil
// return means the document is valid.
func (v *Validator) ValidateString(document, schemaID string) error {
	return v.validate(gojsonschema.NewStringLoader(document), schemaID)
}

// ValidateStruct validates the given object against schemaID. A nil return
// means the object is valid.
func (v *Validator) ValidateStruct(object interface{}, schemaID string) error {
	return v.validate(gojsonschema.NewGoLoader(object), schemaID)
}

func (v *Validator) validate(loader gojsonschema.JSONLoader, schemaID string) error {
	compiled, ok := v.compiled[schemaID]
	if !ok {
		return fmt.Errorf("there is no schema %s", schemaID)
	}
	result, err := compiled.Validate(loader)
	if err != nil {
		return fmt.Errorf("cannot validate with schema %s %s", schemaID, err)
	}
	if !result.Valid() {
		var sb strings.Builder
		sb.WriteString("the document is not valid:\n")
		for _, e := range result.Errors() {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
		return errors.New(sb.String())
	}
	return nil
}
