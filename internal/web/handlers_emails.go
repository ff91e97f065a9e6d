package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/asheshgoplani/inbox-deck/internal/hub"
)

type emailsResponse struct {
	Emails []*hub.Email `json:"emails"`
}

type ingestResponse struct {
	Email       *hub.Email     `json:"email"`
	Suggestions []*hub.Project `json:"suggestions"`
}

type suggestionsResponse struct {
	EmailID     string         `json:"emailId"`
	Suggestions []*hub.Project `json:"suggestions"`
}

type threadResponse struct {
	EmailID string       `json:"emailId"`
	Thread  []*hub.Email `json:"thread"`
}

type linkRequest struct {
	ProjectID string `json:"projectId"`
}

type linkResponse struct {
	EmailID   string `json:"emailId"`
	ProjectID string `json:"projectId"`
}

// handleEmails serves GET /api/emails[?unlinked=true] and POST /api/emails.
// A POSTed email is stored and answered with its ranked suggestions.
func (s *Server) handleEmails(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		unlinked, _ := strconv.ParseBool(r.URL.Query().Get("unlinked"))
		emails, err := s.svc.Emails(r.Context(), unlinked)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if emails == nil {
			emails = []*hub.Email{}
		}
		writeJSON(w, http.StatusOK, emailsResponse{Emails: emails})
		return
	}

	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	var e hub.Email
	if !decodeBody(w, r, &e) {
		return
	}
	if e.ID != "" && !hub.ValidID(e.ID) {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid email id")
		return
	}
	if e.ProjectID != "" {
		if _, err := s.svc.Project(r.Context(), e.ProjectID); err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown project "+strconv.Quote(e.ProjectID))
			return
		}
	}

	suggestions, err := s.svc.IngestEmail(r.Context(), &e)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	writeJSON(w, http.StatusCreated, ingestResponse{Email: &e, Suggestions: nonNilProjects(suggestions)})
}

// handleEmail serves GET /api/emails/{id}.
func (s *Server) handleEmail(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.svc.Email(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleEmailSuggestions serves GET /api/emails/{id}/suggestions?limit=.
func (s *Server) handleEmailSuggestions(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	suggestions, err := s.svc.Suggestions(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{EmailID: id, Suggestions: nonNilProjects(suggestions)})
}

// handleEmailThread serves GET /api/emails/{id}/thread.
func (s *Server) handleEmailThread(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodGet) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	chain, err := s.svc.Thread(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if chain == nil {
		chain = []*hub.Email{}
	}
	writeJSON(w, http.StatusOK, threadResponse{EmailID: id, Thread: chain})
}

// handleEmailLink serves POST (confirm) and DELETE (clear) on
// /api/emails/{id}/link.
func (s *Server) handleEmailLink(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r, http.MethodPost, http.MethodDelete) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.svc.Unlink(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, linkResponse{EmailID: id})
		return
	}

	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	if !hub.ValidID(req.ProjectID) {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "projectId is required")
		return
	}
	if err := s.svc.Link(r.Context(), id, req.ProjectID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{EmailID: id, ProjectID: req.ProjectID})
}

// queryLimit parses ?limit=. Absent means no limit.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
