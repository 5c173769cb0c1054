// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package access

import (
	"context"
	"errors"
	"testing"

	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/storage"
	"github.com/crudkit-tech/crudkit/storage/memstore"
)

type Account struct {
	ID    int64  `json:"id"`
	Extid string `json:"extid"`
	Owner string `json:"owner"`
}

type Locked struct {
	ID    int64  `json:"id"`
	Extid string `json:"extid"`
}

type Plain struct {
	ID int64 `json:"id"`
}

var (
	accountType = &storage.Type{Name: "account", Prototype: (*Account)(nil)}
	lockedType  = &storage.Type{Name: "locked", Prototype: (*Locked)(nil)}
	plainType   = &storage.Type{Name: "plain", Prototype: (*Plain)(nil)}
)

func (a *Account) QueryForUser(s storage.Session, p core.Principal) (storage.Query, error) {
	if p == nil {
		return nil, Deny
	}
	return s.Query(accountType).Filter("owner", p.Identity()), nil
}

func (l *Locked) QueryForUser(s storage.Session, p core.Principal) (storage.Query, error) {
	return nil, Deny
}

type principal string

func (p principal) Identity() string { return string(p) }

func TestQueryForUserScopes(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	for _, owner := range []string{"alice", "alice", "bob"} {
		if err := store.Insert(ctx, accountType, &Account{Owner: owner}); err != nil {
			t.Fatal(err)
		}
	}

	q, err := QueryForUser(store, accountType, principal("alice"))
	if err != nil {
		t.Fatal(err)
	}
	items, err := q.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(items))
	}
}

func TestQueryForUserDeny(t *testing.T) {
	store := memstore.New()

	if _, err := QueryForUser(store, lockedType, principal("alice")); !errors.Is(err, Deny) {
		t.Fatalf("expected deny, got %v", err)
	}
	// anonymous principals can be denied by the scoping rule too
	if _, err := QueryForUser(store, accountType, nil); !errors.Is(err, Deny) {
		t.Fatalf("expected deny, got %v", err)
	}
}

func TestQueryForUserNotScoped(t *testing.T) {
	store := memstore.New()

	_, err := QueryForUser(store, plainType, principal("alice"))
	if !errors.Is(err, ErrNotScoped) {
		t.Fatalf("expected not scoped, got %v", err)
	}
	if errors.Is(err, Deny) {
		t.Fatal("a missing capability is not a denial")
	}
}

func TestGetForUserOr404(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	mine := &Account{Owner: "alice"}
	theirs := &Account{Owner: "bob"}
	for _, a := range []*Account{mine, theirs} {
		if err := store.Insert(ctx, accountType, a); err != nil {
			t.Fatal(err)
		}
	}

	e, err := GetForUserOr404(ctx, store, accountType, principal("alice"), mine.Extid, "extid")
	if err != nil {
		t.Fatal(err)
	}
	if e.(*Account).ID != mine.ID {
		t.Fatalf("wrong account: %+v", e)
	}

	// absent record
	if _, err := GetForUserOr404(ctx, store, accountType, principal("alice"), "no-such-extid", "extid"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	// existing record that is scoped out: indistinguishable from absent
	if _, err := GetForUserOr404(ctx, store, accountType, principal("alice"), theirs.Extid, "extid"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetForUserOr404DenyIsNotFound(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	locked := &Locked{}
	if err := store.Insert(ctx, lockedType, locked); err != nil {
		t.Fatal(err)
	}

	_, err := GetForUserOr404(ctx, store, lockedType, principal("alice"), locked.Extid, "extid")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetForUserOr404MissingKeyAttr(t *testing.T) {
	store := memstore.New()

	_, err := GetForUserOr404(context.Background(), store, accountType, principal("alice"), "x", "serial")
	if !core.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if errors.Is(err, core.ErrNotFound) {
		t.Fatal("a missing key attribute is a wiring bug, not a 404")
	}
}
