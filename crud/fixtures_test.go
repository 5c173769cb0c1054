// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package crud

import (
	"context"
	"testing"

	"github.com/crudkit-tech/crudkit/access"
	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/storage"
	"github.com/crudkit-tech/crudkit/storage/memstore"
)

// The test fixture: humans own pets and cars. A human can only see and
// modify itself, pets are visible and writable for everybody, the vault
// denies all access, gadgets and notes are deliberately misconfigured.

type Human struct {
	ID    int64  `json:"id"`
	Extid string `json:"extid"`
	Name  string `json:"name"`
	Pets  []*Pet `json:"pets,omitempty"`
	Cars  []*Car `json:"cars,omitempty"`
}

type Pet struct {
	ID      int64  `json:"id"`
	Extid   string `json:"extid"`
	Name    string `json:"name"`
	HumanID int64  `json:"human_id"`
	Human   *Human `json:"human,omitempty"`
}

type Car struct {
	ID      int64  `json:"id"`
	Extid   string `json:"extid"`
	Model   string `json:"model"`
	HumanID int64  `json:"human_id"`
}

// Vault denies listing for everybody.
type Vault struct {
	ID     int64  `json:"id"`
	Extid  string `json:"extid"`
	Secret string `json:"secret"`
}

// Gadget implements no access capabilities at all.
type Gadget struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Note is scoped but lacks a write rule.
type Note struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

var (
	humanType  = &storage.Type{Name: "human", Prototype: (*Human)(nil)}
	petType    = &storage.Type{Name: "pet", Prototype: (*Pet)(nil)}
	carType    = &storage.Type{Name: "car", Prototype: (*Car)(nil)}
	vaultType  = &storage.Type{Name: "vault", Prototype: (*Vault)(nil)}
	gadgetType = &storage.Type{Name: "gadget", Prototype: (*Gadget)(nil)}
	noteType   = &storage.Type{Name: "note", Prototype: (*Note)(nil)}
)

func init() {
	humanType.Relations = []storage.Relation{
		{Name: "pets", Target: petType, Field: "human_id", Many: true},
		{Name: "cars", Target: carType, Field: "human_id", Many: true},
	}
	petType.Relations = []storage.Relation{
		{Name: "human", Target: humanType, Field: "human_id"},
	}
}

func (h *Human) QueryForUser(s storage.Session, p core.Principal) (storage.Query, error) {
	if p == nil {
		return nil, access.Deny
	}
	return s.Query(humanType).Filter("name", p.Identity()), nil
}

func (h *Human) CanWrite(p core.Principal) bool {
	return h.Name == p.Identity()
}

func (h *Human) CanCreate(p core.Principal, attrs map[string]interface{}) bool {
	_, forbidden := attrs["not_allowed"]
	return !forbidden
}

func (pt *Pet) QueryForUser(s storage.Session, p core.Principal) (storage.Query, error) {
	if p == nil {
		return nil, access.Deny
	}
	return s.Query(petType), nil
}

func (pt *Pet) CanRead(p core.Principal) bool  { return true }
func (pt *Pet) CanWrite(p core.Principal) bool { return true }

func (v *Vault) QueryForUser(s storage.Session, p core.Principal) (storage.Query, error) {
	return nil, access.Deny
}

func (v *Vault) CanRead(p core.Principal) bool  { return false }
func (v *Vault) CanWrite(p core.Principal) bool { return false }

func (n *Note) QueryForUser(s storage.Session, p core.Principal) (storage.Query, error) {
	return s.Query(noteType), nil
}

type testPrincipal string

func (p testPrincipal) Identity() string { return string(p) }

func as(identity string) context.Context {
	return core.ContextWithPrincipal(context.Background(), testPrincipal(identity))
}

func newTestExtension(t *testing.T) (*Extension, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	ext := New(&Builder{
		Session:             store,
		GetPrincipal:        core.PrincipalFromContext,
		AccessChecksEnabled: true,
	})
	return ext, store
}

// seed inserts two humans with their pets and cars directly through the
// session, bypassing all checks.
func seed(t *testing.T, store *memstore.Store) (alice, bob *Human) {
	t.Helper()
	ctx := context.Background()
	alice = &Human{Name: "alice"}
	bob = &Human{Name: "bob"}
	for _, h := range []*Human{alice, bob} {
		if err := store.Insert(ctx, humanType, h); err != nil {
			t.Fatal(err)
		}
	}
	pets := []*Pet{
		{Name: "rex", HumanID: alice.ID},
		{Name: "milo", HumanID: bob.ID},
	}
	for _, p := range pets {
		if err := store.Insert(ctx, petType, p); err != nil {
			t.Fatal(err)
		}
	}
	cars := []*Car{
		{Model: "beetle", HumanID: alice.ID},
		{Model: "van", HumanID: bob.ID},
	}
	for _, c := range cars {
		if err := store.Insert(ctx, carType, c); err != nil {
			t.Fatal(err)
		}
	}
	return alice, bob
}
