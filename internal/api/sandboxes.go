package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SpawnSandboxRequest is the payload for POST /api/v1/sandboxes.
type SpawnSandboxRequest struct {
	OrgID string `json:"org_id"`
	Name  string `json:"name"`
}

func (s *Server) spawnSandbox(w http.ResponseWriter, r *http.Request) {
	var req SpawnSandboxRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid org_id")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	sb, err := s.sandboxes.Spawn(r.Context(), orgID, req.Name)
	if err != nil {
		s.logger.Error("sandbox spawn failed", "org_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sb)
}

func (s *Server) listSandboxes(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.URL.Query().Get("org_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid org_id")
		return
	}

	list, err := s.sandboxes.List(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sandboxes": list,
		"count":     len(list),
	})
}

func (s *Server) sandboxStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sandbox id")
		return
	}

	sb, err := s.sandboxes.Status(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sb == nil {
		writeError(w, http.StatusNotFound, "sandbox not found")
		return
	}
	writeJSON(w, http.StatusOK, sb)
}

func (s *Server) destroySandbox(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sandbox id")
		return
	}

	if err := s.sandboxes.Destroy(r.Context(), id); err != nil {
		s.logger.Error("sandbox destroy failed", "sandbox_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
