// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package crud

import (
	"context"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/storage"
)

// ResourceConfig configures a ResourceView. All flags default to off:
// every endpoint a deployment serves is switched on explicitly.
type ResourceConfig struct {
	// Model is the entity type served by this view.
	Model *storage.Type
	// GetEnabled switches the GET resource endpoint on.
	GetEnabled bool
	// UpdateEnabled switches the PATCH resource endpoint on.
	UpdateEnabled bool
	// DeleteEnabled switches the DELETE resource endpoint on.
	DeleteEnabled bool
	// SkipAccessChecks opts this view out of instance-level access control
	// even when the extension has checks enabled. Types that implement user
	// scoping keep their scoping query regardless.
	SkipAccessChecks bool
	// KeyAttr selects the attribute the route key is matched against.
	// Empty means the primary key. Deployments that expose externally-safe
	// identifiers set this to the alternate key attribute, e.g. "extid".
	KeyAttr string
	// SchemaID selects the JSON schema update payloads are validated
	// against. Empty means no validation.
	SchemaID string
}

// ResourceView serves the single-entity endpoints of one entity type:
// fetching, partial update and deletion, each behind a per-instance
// authorization check.
type ResourceView struct {
	view
	getEnabled    bool
	updateEnabled bool
	deleteEnabled bool
	keyAttr       string
}

// Resource creates a resource view bound to this extension.
func (e *Extension) Resource(cfg ResourceConfig) *ResourceView {
	return &ResourceView{
		view: view{
			ext:              e,
			model:            cfg.Model,
			skipAccessChecks: cfg.SkipAccessChecks,
			schemaID:         cfg.SchemaID,
		},
		getEnabled:    cfg.GetEnabled,
		updateEnabled: cfg.UpdateEnabled,
		deleteEnabled: cfg.DeleteEnabled,
		keyAttr:       cfg.KeyAttr,
	}
}

// lookup fetches the addressed entity. The fetch itself is unscoped, the
// caller authorizes the instance afterwards; a record that fails that check
// answers 403, not 404.
func (rv *ResourceView) lookup(ctx context.Context, key string) (*storage.Type, storage.Entity, error) {
	t, err := rv.resolveModel()
	if err != nil {
		return nil, nil, err
	}
	if rv.keyAttr == "" {
		e, err := rv.ext.session.Get(ctx, t, key)
		return t, e, err
	}
	if !t.HasField(rv.keyAttr) {
		return nil, nil, core.Configurationf("type %s has no attribute %q; configure the resource key attribute",
			t.Name, rv.keyAttr)
	}
	e, err := rv.ext.session.Query(t).Filter(rv.keyAttr, key).One(ctx)
	return t, e, err
}

// protectedAttrs returns the attributes an update payload may never
// overwrite: the primary key and the lookup key.
func (rv *ResourceView) protectedAttrs(t *storage.Type) []string {
	protect := []string{t.KeyField()}
	if rv.keyAttr != "" && rv.keyAttr != t.KeyField() {
		protect = append(protect, rv.keyAttr)
	}
	return protect
}

// Get fetches one entity by its route key.
func (rv *ResourceView) Get(ctx context.Context, key string) (storage.Entity, error) {
	if !rv.getEnabled {
		return nil, ErrMethodNotAllowed
	}
	t, e, err := rv.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := rv.checkCanRead(ctx, t, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Patch partially updates one entity. Authorization happens against the
// stored instance before any attribute is applied; only persisted
// attributes are applied, relation fields and unknown keys are silently
// ignored.
func (rv *ResourceView) Patch(ctx context.Context, key string, attrs map[string]interface{}) (storage.Entity, error) {
	if !rv.updateEnabled {
		return nil, ErrMethodNotAllowed
	}
	t, e, err := rv.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := rv.checkCanWrite(ctx, t, e, core.OperationUpdate); err != nil {
		return nil, err
	}
	if err := storage.ApplyAttributes(t, e, attrs, rv.protectedAttrs(t)...); err != nil {
		return nil, err
	}
	if err := rv.ext.session.Update(ctx, t, e); err != nil {
		return nil, err
	}
	rv.ext.notify(ctx, t, core.OperationUpdate, e)
	return e, nil
}

// Delete removes one entity.
func (rv *ResourceView) Delete(ctx context.Context, key string) error {
	if !rv.deleteEnabled {
		return ErrMethodNotAllowed
	}
	t, e, err := rv.lookup(ctx, key)
	if err != nil {
		return err
	}
	if err := rv.checkCanWrite(ctx, t, e, core.OperationDelete); err != nil {
		return err
	}
	if err := rv.ext.session.Delete(ctx, t, e); err != nil {
		return err
	}
	rv.ext.notify(ctx, t, core.OperationDelete, e)
	return nil
}

// ServeGet handles GET on the resource route.
func (rv *ResourceView) ServeGet(w http.ResponseWriter, r *http.Request) {
	e, err := rv.Get(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

// ServePatch handles PATCH on the resource route.
func (rv *ResourceView) ServePatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := rv.validatePayload(body); err != nil {
		WriteError(w, r, err)
		return
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(body, &attrs); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	e, err := rv.Patch(r.Context(), mux.Vars(r)["key"], attrs)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

// ServeDelete handles DELETE on the resource route.
func (rv *ResourceView) ServeDelete(w http.ResponseWriter, r *http.Request) {
	if err := rv.Delete(r.Context(), mux.Vars(r)["key"]); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Register adds the resource routes to the router. The route must contain a
// {key} variable. Disabled methods are registered too; they answer 405
// before any lookup or authorization.
func (rv *ResourceView) Register(router *mux.Router, route string) {
	router.HandleFunc(route, rv.ServeGet).Methods(http.MethodGet)
	router.HandleFunc(route, rv.ServePatch).Methods(http.MethodPatch)
	router.HandleFunc(route, rv.ServeDelete).Methods(http.MethodDelete)
}
