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

// CollectionConfig configures a CollectionView. All flags default to off:
// every endpoint a deployment serves is switched on explicitly.
type CollectionConfig struct {
	// Model is the entity type served by this view.
	Model *storage.Type
	// ListEnabled switches the GET collection endpoint on.
	ListEnabled bool
	// CreateEnabled switches the POST collection endpoint on.
	CreateEnabled bool
	// SkipAccessChecks opts this view out of instance-level access control
	// even when the extension has checks enabled. Types that implement user
	// scoping keep their scoping query regardless.
	SkipAccessChecks bool
	// Prefetch is the eager-load plan applied to every list query.
	Prefetch []storage.Prefetch
	// SchemaID selects the JSON schema create payloads are validated
	// against. Empty means no validation.
	SchemaID string
}

// CollectionView serves the collection endpoints of one entity type:
// listing with per-user scoping and eager loading, and creation with
// attribute-level authorization.
type CollectionView struct {
	view
	listEnabled   bool
	createEnabled bool
	prefetch      []storage.Prefetch
}

// Collection creates a collection view bound to this extension.
func (e *Extension) Collection(cfg CollectionConfig) *CollectionView {
	return &CollectionView{
		view: view{
			ext:              e,
			model:            cfg.Model,
			skipAccessChecks: cfg.SkipAccessChecks,
			schemaID:         cfg.SchemaID,
		},
		listEnabled:   cfg.ListEnabled,
		createEnabled: cfg.CreateEnabled,
		prefetch:      cfg.Prefetch,
	}
}

// List returns all entities the current principal may see, with the view's
// prefetch plan applied. Listing is governed by scoping alone, there are no
// per-row checks.
func (cv *CollectionView) List(ctx context.Context) ([]storage.Entity, error) {
	if !cv.listEnabled {
		return nil, ErrMethodNotAllowed
	}
	q, err := cv.queryForUser(ctx)
	if err != nil {
		return nil, err
	}
	if len(cv.prefetch) > 0 {
		q = q.Prefetch(cv.prefetch...)
	}
	return q.All(ctx)
}

// Create builds a new entity from the given attributes, authorizes it and
// persists it. The authorization rule sees both the unsaved instance and the
// raw attributes; a denial leaves no trace in the store. The primary key is
// always assigned by the store, a key attribute in the payload is ignored.
func (cv *CollectionView) Create(ctx context.Context, attrs map[string]interface{}) (storage.Entity, error) {
	if !cv.createEnabled {
		return nil, ErrMethodNotAllowed
	}
	t, err := cv.resolveModel()
	if err != nil {
		return nil, err
	}
	e := t.New()
	if err := storage.ApplyAttributes(t, e, attrs, t.KeyField()); err != nil {
		return nil, err
	}
	if err := cv.checkCanCreate(ctx, t, e, attrs); err != nil {
		return nil, err
	}
	if err := cv.ext.session.Insert(ctx, t, e); err != nil {
		return nil, err
	}
	cv.ext.notify(ctx, t, core.OperationCreate, e)
	return e, nil
}

// ServeList handles GET on the collection route.
func (cv *CollectionView) ServeList(w http.ResponseWriter, r *http.Request) {
	items, err := cv.List(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if items == nil {
		items = []storage.Entity{}
	}
	writeJSON(w, r, http.StatusOK, items)
}

// ServeCreate handles POST on the collection route.
func (cv *CollectionView) ServeCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := cv.validatePayload(body); err != nil {
		WriteError(w, r, err)
		return
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(body, &attrs); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	e, err := cv.Create(r.Context(), attrs)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

// Register adds the collection routes to the router. Disabled methods are
// registered too; they answer 405 before any lookup or authorization.
func (cv *CollectionView) Register(router *mux.Router, route string) {
	router.HandleFunc(route, cv.ServeList).Methods(http.MethodGet)
	router.HandleFunc(route, cv.ServeCreate).Methods(http.MethodPost)
}
