// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package crud

import (
	"context"
	"errors"
	"fmt"

	"github.com/crudkit-tech/crudkit/access"
	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/core/logger"
	"github.com/crudkit-tech/crudkit/storage"
)

// view is the machinery shared by CollectionView and ResourceView: model
// resolution, the per-request scoping query and the per-instance access
// checks. The enforcement order is fixed and the views rely on it: method
// gate first, then lookup, then authorization, and only then any mutation.
type view struct {
	ext              *Extension
	model            *storage.Type
	skipAccessChecks bool
	schemaID         string
}

func (v *view) resolveModel() (*storage.Type, error) {
	if v.model == nil {
		return nil, core.Configurationf("view has no entity type bound")
	}
	return v.model, nil
}

// effectiveAccessChecksEnabled combines the process-wide flag with the view
// configuration. A view can opt out of checks, never opt in beyond the
// extension.
func (v *view) effectiveAccessChecksEnabled() bool {
	return v.ext.accessChecksEnabled && !v.skipAccessChecks
}

func (v *view) identity(ctx context.Context) string {
	if p := v.ext.principal(ctx); p != nil {
		return p.Identity()
	}
	return "anonymous"
}

// denied logs the denial and returns ErrForbidden. Every refused access
// leaves a trace with the entity type, operation and identity.
func (v *view) denied(ctx context.Context, t *storage.Type, op core.Operation) error {
	logger.FromContext(ctx).Warnf("access denied: cannot %s %s as %s", op, t.Name, v.identity(ctx))
	return ErrForbidden
}

// queryForUser returns the query the current principal may list the view's
// type with. Scoping is a property of the type, not of the access-check
// flag: a type that implements it is always listed through its scoping
// query, and an explicit Deny becomes Forbidden even with checks disabled.
// The flag only decides what a type without scoping means: a configuration
// error with effective checks, a plain unscoped query without.
func (v *view) queryForUser(ctx context.Context) (storage.Query, error) {
	t, err := v.resolveModel()
	if err != nil {
		return nil, err
	}
	q, err := v.ext.QueryForCurrentUser(ctx, t)
	if err == nil {
		return q, nil
	}
	if errors.Is(err, access.Deny) {
		return nil, v.denied(ctx, t, core.OperationList)
	}
	if errors.Is(err, access.ErrNotScoped) {
		if !v.effectiveAccessChecksEnabled() {
			return v.ext.session.Query(t), nil
		}
		return nil, core.Configurationf("type %s takes part in access-checked endpoints but does not implement user scoping", t.Name)
	}
	return nil, err
}

// checkCanRead authorizes reading one instance. Types without a read rule
// fall back to the write rule.
func (v *view) checkCanRead(ctx context.Context, t *storage.Type, e storage.Entity) error {
	if !v.effectiveAccessChecksEnabled() {
		return nil
	}
	p := v.ext.principal(ctx)
	if p == nil {
		return v.denied(ctx, t, core.OperationRead)
	}
	if r, ok := e.(access.Readable); ok {
		if !r.CanRead(p) {
			return v.denied(ctx, t, core.OperationRead)
		}
		return nil
	}
	return v.checkCanWrite(ctx, t, e, core.OperationRead)
}

// checkCanWrite authorizes modifying or deleting one instance. A type that
// reaches this point without a write rule is misconfigured; that is a server
// fault, not a denial.
func (v *view) checkCanWrite(ctx context.Context, t *storage.Type, e storage.Entity, op core.Operation) error {
	if !v.effectiveAccessChecksEnabled() {
		return nil
	}
	p := v.ext.principal(ctx)
	if p == nil {
		return v.denied(ctx, t, op)
	}
	w, ok := e.(access.Writable)
	if !ok {
		return core.Configurationf("type %s takes part in access-checked endpoints but does not implement write authorization", t.Name)
	}
	if !w.CanWrite(p) {
		return v.denied(ctx, t, op)
	}
	return nil
}

// checkCanCreate authorizes creating an instance with the proposed
// attributes. Types without a create rule allow creation.
func (v *view) checkCanCreate(ctx context.Context, t *storage.Type, e storage.Entity, attrs map[string]interface{}) error {
	if !v.effectiveAccessChecksEnabled() {
		return nil
	}
	p := v.ext.principal(ctx)
	if p == nil {
		return v.denied(ctx, t, core.OperationCreate)
	}
	c, ok := e.(access.Creatable)
	if !ok {
		return nil
	}
	if !c.CanCreate(p, attrs) {
		return v.denied(ctx, t, core.OperationCreate)
	}
	return nil
}

// validatePayload validates a raw request body against the view's schema, if
// one is configured. A schema ID that the validator does not know is a
// wiring bug.
func (v *view) validatePayload(data []byte) error {
	if v.schemaID == "" {
		return nil
	}
	if v.ext.validator == nil {
		return core.Configurationf("view declares schema %s but the extension has no validator", v.schemaID)
	}
	if !v.ext.validator.HasSchema(v.schemaID) {
		return core.Configurationf("validator has no schema %s", v.schemaID)
	}
	if err := v.ext.validator.ValidateString(string(data), v.schemaID); err != nil {
		return fmt.Errorf("%w: %s", ErrBadRequest, err)
	}
	return nil
}
