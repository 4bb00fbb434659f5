package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"creature-catalog-api/internal/models"
	"creature-catalog-api/internal/session"
)

// SessionHandler manages browsing sessions
type SessionHandler struct {
	registry *session.Registry
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(registry *session.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// CreateSession handles POST /v1/sessions - Start a session and load its
// first page. A failed first load still creates the session; the view
// carries the error and the client may refresh.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	spec := models.DefaultFilterSpec()
	if !decodeFilter(w, r, &spec, true) {
		return
	}

	s := h.registry.Create(spec)
	view, err := s.LoadFirstPage(r.Context())
	if err != nil {
		slog.Warn("Initial page load failed for new session",
			"session_id", s.ID(),
			"error", err,
			"remote_addr", r.RemoteAddr)
	}

	slog.Info("Session created",
		"session_id", s.ID(),
		"status", view.Status,
		"entries", len(view.Entries),
		"remote_addr", r.RemoteAddr)

	w.Header().Set("Location", "/v1/sessions/"+s.ID())
	writeJSONResponse(w, http.StatusCreated, view)
}

// GetSession handles GET /v1/sessions/{sessionId} - Current view. With
// ?wait=idle the response is held until outstanding enrichment finishes.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("wait") == "idle" {
		if err := s.WaitIdle(r.Context()); err != nil {
			h.writeSessionError(w, r, s, err)
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, s.Snapshot())
}

// SetFilter handles PUT /v1/sessions/{sessionId}/filter - Replace the filter.
// Omitted fields take their defaults.
func (h *SessionHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	spec := models.DefaultFilterSpec()
	if !decodeFilter(w, r, &spec, false) {
		return
	}

	view, err := s.SetFilter(r.Context(), spec)
	if err != nil {
		h.writeSessionError(w, r, s, err)
		return
	}

	slog.Debug("Session filter updated",
		"session_id", s.ID(),
		"query", spec.Query,
		"sort_key", spec.SortKey.String(),
		"visible", len(view.Items))

	writeJSONResponse(w, http.StatusOK, view)
}

// LoadMore handles POST /v1/sessions/{sessionId}/more - Fetch the next
// page. A failed load is reported in the view's loadMoreError.
func (h *SessionHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	view, err := s.LoadMore(r.Context())
	if errors.Is(err, session.ErrClosed) {
		h.writeSessionError(w, r, s, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// Refresh handles POST /v1/sessions/{sessionId}/refresh - Reload from
// the first page
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	view, err := s.Refresh(r.Context())
	if errors.Is(err, session.ErrClosed) {
		h.writeSessionError(w, r, s, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// DeleteSession handles DELETE /v1/sessions/{sessionId}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionId"]
	if !h.registry.Delete(id) {
		writeErrorResponse(w, http.StatusNotFound, "not_found", "Session not found: "+id, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := mux.Vars(r)["sessionId"]
	s, ok := h.registry.Get(id)
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "not_found", "Session not found: "+id, nil)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) writeSessionError(w http.ResponseWriter, r *http.Request, s *session.Session, err error) {
	if errors.Is(err, session.ErrClosed) {
		writeErrorResponse(w, http.StatusNotFound, "not_found", "Session not found: "+s.ID(), nil)
		return
	}
	slog.Warn("Session request interrupted", "session_id", s.ID(), "error", err, "remote_addr", r.RemoteAddr)
	writeErrorResponse(w, http.StatusServiceUnavailable, "unavailable", "Request cancelled", nil)
}

// decodeFilter reads a FilterSpec body. An empty body is accepted only
// when optional is set.
func decodeFilter(w http.ResponseWriter, r *http.Request, spec *models.FilterSpec, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(spec)
	if errors.Is(err, io.EOF) && optional {
		return true
	}
	if err != nil {
		slog.Warn("Invalid filter in request body", "error", err, "remote_addr", r.RemoteAddr)
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid filter", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		})
		return false
	}
	return true
}
