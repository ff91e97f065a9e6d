package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/asheshgoplani/inbox-deck/internal/hub"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type projectsResponse struct {
	Projects []*hub.Project `json:"projects"`
}

type projectSearchResponse struct {
	Query    string         `json:"query"`
	Projects []*hub.Project `json:"projects"`
}

// handleProjects serves GET and POST /api/projects.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		projects, err := s.svc.Projects(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, projectsResponse{Projects: nonNilProjects(projects)})
		return
	}

	var p hub.Project
	if !decodeBody(w, r, &p) {
		return
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "project name is required")
		return
	}
	if p.ID != "" && !hub.ValidID(p.ID) {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid project id")
		return
	}

	created, err := s.svc.SaveProject(r.Context(), &p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, &p)
}

// handleProjectSearch serves GET /api/projects/search?q=.
func (s *Server) handleProjectSearch(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet) {
		return
	}
	query := r.URL.Query().Get("q")
	projects, err := s.svc.SearchProjects(r.Context(), query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectSearchResponse{Query: query, Projects: nonNilProjects(projects)})
}

// handleProject serves GET and DELETE /api/projects/{id}.
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.svc.DeleteProject(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
		return
	}

	p, err := s.svc.Project(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// pathID extracts and validates the {id} path segment.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !hub.ValidID(id) {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid id")
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// nonNilProjects keeps empty lists encoding as [] rather than null.
func nonNilProjects(ps []*hub.Project) []*hub.Project {
	if ps == nil {
		return []*hub.Project{}
	}
	return ps
}
