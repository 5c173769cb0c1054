// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package crud

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/core/logger"
)

// the error taxonomy lives in core; re-exported here for convenience
var (
	ErrNotFound         = core.ErrNotFound
	ErrForbidden        = core.ErrForbidden
	ErrMethodNotAllowed = core.ErrMethodNotAllowed
)

// ErrBadRequest marks a malformed or schema-violating payload.
var ErrBadRequest = errors.New("bad request")

// WriteError translates an operation error into the HTTP response.
// Configuration errors and unexpected storage errors are server faults:
// they are logged with detail and answered with an opaque 500, never
// leaked to the client as a 4xx.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	rlog := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, ErrMethodNotAllowed):
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrBadRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case core.IsConfigurationError(err):
		rlog.WithError(err).Error("Error 1201: view configuration")
		http.Error(w, "Error 1201", http.StatusInternalServerError)
	default:
		rlog.WithError(err).Error("Error 1202: storage operation")
		http.Error(w, "Error 1202", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, object interface{}) {
	data, err := json.MarshalWithOption(object, json.DisableHTMLEscape())
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Error("Error 1203: marshal response")
		http.Error(w, "Error 1203", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
