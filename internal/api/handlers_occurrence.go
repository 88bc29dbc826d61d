// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cityops/data-api/internal/model"
)

const occurrenceCachePrefix = "occ:"

// listOccurrences handles GET /occurrence with optional typeTag, limit and
// offset query parameters.
func (s *Server) listOccurrences(w http.ResponseWriter, r *http.Request) {
	filter, err := occurrenceFilterFromQuery(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	key := fmt.Sprintf("%slist:%s:%d:%d", occurrenceCachePrefix, filter.TypeTag, filter.Limit, filter.Offset)
	if payload, ok := s.cache.Get(key); ok {
		cacheLookups.WithLabelValues("occurrence", "hit").Inc()
		writeRawJSON(w, http.StatusOK, payload)
		return
	}
	cacheLookups.WithLabelValues("occurrence", "miss").Inc()

	occs, err := s.occ.List(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	views := make([]model.OccurrenceView, 0, len(occs))
	for _, occ := range occs {
		views = append(views, occ.View(s.loc))
	}

	payload, err := json.Marshal(views)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.cache.Set(key, payload, cacheTTL)
	writeRawJSON(w, http.StatusOK, payload)
}

// getOccurrence handles GET /occurrence/{id}.
func (s *Server) getOccurrence(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	key := fmt.Sprintf("%sid:%d", occurrenceCachePrefix, id)
	if payload, ok := s.cache.Get(key); ok {
		cacheLookups.WithLabelValues("occurrence", "hit").Inc()
		writeRawJSON(w, http.StatusOK, payload)
		return
	}
	cacheLookups.WithLabelValues("occurrence", "miss").Inc()

	occ, err := s.occ.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	payload, err := json.Marshal(occ.View(s.loc))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.cache.Set(key, payload, cacheTTL)
	writeRawJSON(w, http.StatusOK, payload)
}

// createOccurrence handles POST /occurrence. registerAt/updateAt are set
// server-side.
func (s *Server) createOccurrence(w http.ResponseWriter, r *http.Request) {
	var payload model.OccurrenceCreate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if err := payload.Validate(); err != nil {
		writeBadRequest(w, err)
		return
	}

	occ, err := s.occ.Create(r.Context(), payload.Occurrence(s.now()))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	occurrencesCreated.Inc()
	s.cache.DeletePrefix(occurrenceCachePrefix)
	writeJSON(w, http.StatusCreated, occ.View(s.loc))
}

// updateOccurrence handles PUT /occurrence/{id}. Absent fields are left
// unchanged.
func (s *Server) updateOccurrence(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	var payload model.OccurrenceUpdate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if err := payload.Validate(); err != nil {
		writeBadRequest(w, err)
		return
	}

	occ, err := s.occ.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	payload.Apply(&occ, s.now())
	if err := s.occ.Update(r.Context(), occ); err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.cache.DeletePrefix(occurrenceCachePrefix)
	writeJSON(w, http.StatusOK, occ.View(s.loc))
}

// deleteOccurrence handles DELETE /occurrence/{id}. Deletion is soft: the
// record is deactivated, never removed.
func (s *Server) deleteOccurrence(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := s.occ.Deactivate(r.Context(), id, s.now()); err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.cache.DeletePrefix(occurrenceCachePrefix)
	w.WriteHeader(http.StatusNoContent)
}

func idFromURL(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func occurrenceFilterFromQuery(r *http.Request) (model.OccurrenceFilter, error) {
	q := r.URL.Query()
	filter := model.OccurrenceFilter{TypeTag: q.Get("typeTag")}

	var err error
	if filter.Limit, err = intQuery(q.Get("limit")); err != nil {
		return filter, fmt.Errorf("invalid limit: %w", err)
	}
	if filter.Offset, err = intQuery(q.Get("offset")); err != nil {
		return filter, fmt.Errorf("invalid offset: %w", err)
	}
	return filter, nil
}

func intQuery(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}
