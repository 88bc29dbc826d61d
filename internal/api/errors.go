// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cityops/data-api/internal/log"
	"github.com/cityops/data-api/internal/store"
)

// errorResponse is the error envelope returned by every endpoint.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, code int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: msg})
}

func writeForbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Message: msg})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
}

func writeConflict(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusConflict, errorResponse{Error: "conflict", Message: msg})
}

// writeStoreError maps repository errors to HTTP status codes. Unexpected
// errors are logged and masked as 500.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeNotFound(w)
	case errors.Is(err, store.ErrDuplicateTag):
		writeConflict(w, "tag already exists")
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str("event", "api.store_error").
			Str("path", r.URL.Path).
			Msg("storage operation failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
	}
}
