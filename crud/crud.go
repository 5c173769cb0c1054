// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package crud

import (
	"context"

	"github.com/gorilla/mux"

	"github.com/crudkit-tech/crudkit/access"
	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/schema"
	"github.com/crudkit-tech/crudkit/storage"
)

// Builder is a builder helper for the Extension
type Builder struct {
	// Session is the handle to the storage engine. This is mandatory.
	Session storage.Session
	// GetPrincipal resolves the principal for the current request. This is
	// optional; without a resolver every request counts as anonymous. Most
	// applications pass core.PrincipalFromContext and let an authentication
	// middleware fill the context.
	GetPrincipal func(ctx context.Context) core.Principal
	// AccessChecksEnabled enables access control checks process-wide.
	// Individual views can opt out, but never opt in beyond this flag.
	// The flag governs the instance-level checks and whether a type
	// without user scoping counts as misconfigured; a type that does
	// implement scoping is always listed through its scoping query.
	AccessChecksEnabled bool
	// KeyAttr is the attribute name used for alternate-key lookups via
	// GetForCurrentUserOr404. Defaults to "extid".
	KeyAttr string
	// Validator validates create and update payloads for views that
	// declare a SchemaID. This is optional.
	Validator *schema.Validator
	// Notifier receives a notification after every committed mutation.
	// This is optional.
	Notifier Notifier
}

// Extension is the process-wide CRUD state: the storage session, the
// principal resolver, the access-check master switch and the alternate key
// attribute. It is created once at startup and read-only afterwards; views
// receive it by injection.
type Extension struct {
	session             storage.Session
	getPrincipal        func(ctx context.Context) core.Principal
	accessChecksEnabled bool
	keyAttr             string
	validator           *schema.Validator
	notifier            Notifier
}

// New realizes the extension. It panics on an incomplete builder, missing
// state would otherwise surface request by request.
func New(bb *Builder) *Extension {
	if bb.Session == nil {
		panic("Session is missing")
	}
	keyAttr := bb.KeyAttr
	if keyAttr == "" {
		keyAttr = "extid"
	}
	return &Extension{
		session:             bb.Session,
		getPrincipal:        bb.GetPrincipal,
		accessChecksEnabled: bb.AccessChecksEnabled,
		keyAttr:             keyAttr,
		validator:           bb.Validator,
		notifier:            bb.Notifier,
	}
}

// Session returns the storage session handle.
func (e *Extension) Session() storage.Session {
	return e.session
}

func (e *Extension) principal(ctx context.Context) core.Principal {
	if e.getPrincipal == nil {
		return nil
	}
	return e.getPrincipal(ctx)
}

// QueryForCurrentUser resolves the current principal and returns the scoped
// query for the given type. See access.QueryForUser for the error contract.
func (e *Extension) QueryForCurrentUser(ctx context.Context, t *storage.Type) (storage.Query, error) {
	return access.QueryForUser(e.session, t, e.principal(ctx))
}

// Handle registers the routes for one resource on the router, following the
// idiomatic REST layout: the collection at the pluralized resource name and
// single entities one path segment below, addressed by {key}. Either view
// may be nil.
func (e *Extension) Handle(router *mux.Router, resource string, cv *CollectionView, rv *ResourceView) {
	route := "/" + core.Plural(resource)
	if cv != nil {
		cv.Register(router, route)
	}
	if rv != nil {
		rv.Register(router, route+"/{key}")
	}
}

// GetForCurrentUserOr404 resolves the current principal and fetches one
// entity by the extension's alternate key attribute through the principal's
// scoping query. See access.GetForUserOr404 for the error contract.
func (e *Extension) GetForCurrentUserOr404(ctx context.Context, t *storage.Type, keyValue interface{}) (storage.Entity, error) {
	return access.GetForUserOr404(ctx, e.session, t, e.principal(ctx), keyValue, e.keyAttr)
}
