// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package crud

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"

	"github.com/crudkit-tech/crudkit/client"
	"github.com/crudkit-tech/crudkit/core/logger"
	"github.com/crudkit-tech/crudkit/schema"
	"github.com/crudkit-tech/crudkit/storage"
	"github.com/crudkit-tech/crudkit/storage/memstore"
)

const humanSchema = `{
	"$id": "http://crudkit.io/schemas/human",
	"type": "object",
	"properties": {
		"name": { "type": "string", "minLength": 1 }
	},
	"required": ["name"],
	"additionalProperties": true
}`

// newTestService wires a full stack: extension, views, routes and an
// in-process client.
func newTestService(t *testing.T) (*mux.Router, *memstore.Store) {
	t.Helper()
	ext, store := newTestExtension(t)

	validator, err := schema.NewValidator([]string{humanSchema}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ext.validator = validator

	router := mux.NewRouter()
	logger.AddRequestID(router)

	ext.Handle(router, "human",
		ext.Collection(CollectionConfig{
			Model:         humanType,
			ListEnabled:   true,
			CreateEnabled: true,
			SchemaID:      "http://crudkit.io/schemas/human",
		}),
		ext.Resource(ResourceConfig{
			Model:         humanType,
			GetEnabled:    true,
			UpdateEnabled: true,
			DeleteEnabled: true,
			KeyAttr:       "extid",
		}),
	)
	ext.Handle(router, "pet",
		ext.Collection(CollectionConfig{
			Model:       petType,
			ListEnabled: true,
			Prefetch: []storage.Prefetch{
				storage.Single("human"),
				storage.Chain("human", "cars"),
			},
		}),
		ext.Resource(ResourceConfig{
			Model:      petType,
			GetEnabled: true,
			KeyAttr:    "extid",
		}),
	)
	ext.Handle(router, "gadget",
		ext.Collection(CollectionConfig{Model: gadgetType, ListEnabled: true}),
		nil,
	)
	return router, store
}

func TestHTTPCreateReadUpdateDelete(t *testing.T) {
	router, _ := newTestService(t)
	cl := client.NewWithRouter(router).WithPrincipal(testPrincipal("carol"))
	humans := cl.Collection("human")

	var carol Human
	status, err := humans.Create(Human{Name: "carol"}, &carol)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if carol.Extid == "" {
		t.Fatal("created human has no extid")
	}

	var read Human
	if _, err := humans.Item(carol.Extid).Read(&read); err != nil {
		t.Fatal(err)
	}
	if read.Name != "carol" || read.ID != carol.ID {
		t.Fatalf("round trip mismatch: %+v", read)
	}

	var updated Human
	if _, err := humans.Item(carol.Extid).Patch(map[string]interface{}{"name": "caroline"}, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Name != "caroline" {
		t.Fatalf("patch not applied: %+v", updated)
	}

	// the write rule compares against the stored name, carol is gone
	cl = client.NewWithRouter(router).WithPrincipal(testPrincipal("caroline"))
	status, err = cl.Collection("human").Item(carol.Extid).Delete()
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}

	status, _ = cl.Collection("human").Item(carol.Extid).Read(&read)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}

func TestHTTPListScoping(t *testing.T) {
	router, store := newTestService(t)
	seed(t, store)
	cl := client.NewWithRouter(router).WithPrincipal(testPrincipal("alice"))

	var humans []Human
	if _, err := cl.Collection("human").List(&humans); err != nil {
		t.Fatal(err)
	}
	if len(humans) != 1 || humans[0].Name != "alice" {
		t.Fatalf("expected only alice, got %+v", humans)
	}
}

func TestHTTPPrefetchedList(t *testing.T) {
	router, store := newTestService(t)
	seed(t, store)
	cl := client.NewWithRouter(router).WithPrincipal(testPrincipal("alice"))

	var pets []Pet
	if _, err := cl.Collection("pet").List(&pets); err != nil {
		t.Fatal(err)
	}
	if len(pets) != 2 {
		t.Fatalf("expected 2 pets, got %d", len(pets))
	}
	for _, pet := range pets {
		if pet.Human == nil || len(pet.Human.Cars) != 1 {
			t.Fatalf("relations not in payload: %+v", pet)
		}
	}
}

func TestHTTPStatusCodes(t *testing.T) {
	router, store := newTestService(t)
	alice, bob := seed(t, store)
	cl := client.NewWithRouter(router).WithPrincipal(testPrincipal("alice"))
	humans := cl.Collection("human")

	// 404 for a missing record
	if status, _ := humans.Item("no-such-extid").Read(&Human{}); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	// 403 for a record the principal may not touch
	if status, _ := humans.Item(bob.Extid).Patch(map[string]interface{}{"name": "hacked"}, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	// 405 for a disabled method, even with a missing key
	if status, _ := cl.Collection("pet").Item("no-such-extid").Patch(map[string]interface{}{}, nil); status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", status)
	}
	// 400 for malformed json
	if status, _ := cl.RawPost("/humans", []byte("{not json"), nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	// 400 for a schema violation
	if status, _ := humans.Create(map[string]interface{}{"name": ""}, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	// 500 for a misconfigured view, never a 4xx
	if status, _ := cl.Collection("gadget").List(nil); status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	// sanity: alice can still read herself
	if status, _ := humans.Item(alice.Extid).Read(&Human{}); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestHTTPEmptyListIsJSONArray(t *testing.T) {
	router, _ := newTestService(t)
	cl := client.NewWithRouter(router).WithPrincipal(testPrincipal("alice"))

	var raw []byte
	if _, err := cl.Collection("pet").List(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw) != "[]" {
		t.Fatalf("expected empty json array, got %q", raw)
	}
}
