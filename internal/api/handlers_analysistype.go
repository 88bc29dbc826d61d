// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cityops/data-api/internal/model"
)

const analysisTypeCachePrefix = "atype:"

// listAnalysisTypes handles GET /analysis-type.
func (s *Server) listAnalysisTypes(w http.ResponseWriter, r *http.Request) {
	key := analysisTypeCachePrefix + "list"
	if payload, ok := s.cache.Get(key); ok {
		cacheLookups.WithLabelValues("analysis_type", "hit").Inc()
		writeRawJSON(w, http.StatusOK, payload)
		return
	}
	cacheLookups.WithLabelValues("analysis_type", "miss").Inc()

	types, err := s.atypes.List(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	views := make([]model.AnalysisTypeView, 0, len(types))
	for _, at := range types {
		views = append(views, at.View())
	}

	payload, err := json.Marshal(views)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.cache.Set(key, payload, cacheTTL)
	writeRawJSON(w, http.StatusOK, payload)
}

// getAnalysisType handles GET /analysis-type/{id}.
func (s *Server) getAnalysisType(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	key := fmt.Sprintf("%sid:%d", analysisTypeCachePrefix, id)
	if payload, ok := s.cache.Get(key); ok {
		cacheLookups.WithLabelValues("analysis_type", "hit").Inc()
		writeRawJSON(w, http.StatusOK, payload)
		return
	}
	cacheLookups.WithLabelValues("analysis_type", "miss").Inc()

	at, err := s.atypes.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	payload, err := json.Marshal(at.View())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.cache.Set(key, payload, cacheTTL)
	writeRawJSON(w, http.StatusOK, payload)
}

// createAnalysisType handles POST /analysis-type. Tags are unique across the
// catalog.
func (s *Server) createAnalysisType(w http.ResponseWriter, r *http.Request) {
	var payload model.AnalysisTypeCreate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if err := payload.Validate(); err != nil {
		writeBadRequest(w, err)
		return
	}

	at, err := s.atypes.Create(r.Context(), payload.AnalysisType())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	analysisTypesCreated.Inc()
	s.cache.DeletePrefix(analysisTypeCachePrefix)
	writeJSON(w, http.StatusCreated, at.View())
}

// updateAnalysisType handles PUT /analysis-type/{id}.
func (s *Server) updateAnalysisType(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	var payload model.AnalysisTypeUpdate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if err := payload.Validate(); err != nil {
		writeBadRequest(w, err)
		return
	}

	at, err := s.atypes.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	payload.Apply(&at)
	if err := s.atypes.Update(r.Context(), at); err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.cache.DeletePrefix(analysisTypeCachePrefix)
	writeJSON(w, http.StatusOK, at.View())
}

// deleteAnalysisType handles DELETE /analysis-type/{id} as a soft delete.
func (s *Server) deleteAnalysisType(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := s.atypes.Deactivate(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.cache.DeletePrefix(analysisTypeCachePrefix)
	w.WriteHeader(http.StatusNoContent)
}
