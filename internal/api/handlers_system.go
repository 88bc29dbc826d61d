// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
)

// versionResponse is the GET /version payload.
type versionResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Env     string `json:"env"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, versionResponse{
		Service: "data-api",
		Version: s.cfg.Version,
		Env:     s.cfg.Env,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	s.health.ServeHealth(w, r)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	s.health.ServeReady(w, r)
}
