// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package access defines the capability interfaces by which an entity type
takes part in access control, and the resolution utilities the CRUD views
dispatch through.

An entity type declares capabilities by implementing interfaces on its
struct: UserScoped to filter list queries per principal, Writable to
authorize mutations, and optionally Readable and Creatable. Capabilities
are detected on the Type prototype, so a missing implementation surfaces
as a configuration error the first time an access-checked endpoint is hit,
never as a silent denial.
*/
package access

import (
	"context"
	"errors"

	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/storage"
)

// Deny is the explicit denial signal a QueryForUser implementation returns
// when the principal may not list this type at all. It is distinct from an
// empty result, which is an allowed query that matched nothing. Check it
// with errors.Is(err, access.Deny).
var Deny = errors.New("access: deny")

// ErrNotScoped is returned by QueryForUser when the entity type does not
// implement user scoping. Callers distinguish "this model doesn't support
// user filtering" from a filter that legitimately returned nothing.
var ErrNotScoped = errors.New("access: type does not implement user scoping")

// UserScoped is implemented by entity types whose listable records depend
// on who is asking.
type UserScoped interface {
	// QueryForUser returns a query scoped to the records the principal may
	// read, or Deny. The principal is nil for anonymous requests.
	QueryForUser(s storage.Session, p core.Principal) (storage.Query, error)
}

// Readable authorizes reading one instance. Types that do not implement it
// fall back to Writable, reading is then allowed whenever writing is.
type Readable interface {
	CanRead(p core.Principal) bool
}

// Writable authorizes modifying one instance, including deleting it. There
// is no fallback: a type that participates in access-checked endpoints
// without implementing Writable is misconfigured.
type Writable interface {
	CanWrite(p core.Principal) bool
}

// Creatable authorizes creating an instance. The proposed attributes are
// passed through so a rule can reject based on fields the caller attempted
// to set. Types that do not implement Creatable allow creation; there is no
// existing instance to check against, hence the weaker default.
type Creatable interface {
	CanCreate(p core.Principal, attrs map[string]interface{}) bool
}

// QueryForUser resolves the scoping capability of the given type. It
// returns the scoped query, Deny, or ErrNotScoped.
func QueryForUser(s storage.Session, t *storage.Type, p core.Principal) (storage.Query, error) {
	scoped, ok := t.Prototype.(UserScoped)
	if !ok {
		return nil, ErrNotScoped
	}
	q, err := scoped.QueryForUser(s, p)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, Deny
	}
	return q, nil
}

// GetForUserOr404 fetches one entity by the given key attribute through the
// principal's scoping query. A record that is absent and a record that
// exists but is scoped out both come back as core.ErrNotFound; existence is
// never revealed to a principal who may not see the record.
//
// A type lacking the requested key attribute is a programming error and
// fails with a configuration error, not with NotFound.
func GetForUserOr404(ctx context.Context, s storage.Session, t *storage.Type, p core.Principal,
	keyValue interface{}, keyAttr string) (storage.Entity, error) {

	if keyAttr == "" || !t.HasField(keyAttr) {
		return nil, core.Configurationf("type %s has no attribute %q; configure the CRUD key attribute",
			t.Name, keyAttr)
	}

	q, err := QueryForUser(s, t, p)
	if err != nil {
		if errors.Is(err, Deny) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}

	e, err := q.Filter(keyAttr, keyValue).One(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}
