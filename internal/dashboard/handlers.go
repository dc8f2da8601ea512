package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/api"
	"github.com/unitlink/unitlink/internal/models"
)

// HandleHealth health check
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"session": s.deps.Session.Snapshot().State,
		"time":    time.Now(),
	})
}

// ========== Session handlers ==========

// HandleSession returns the session view
func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

// HandleLogin signs in with username and password
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := s.deps.Session.Login(r.Context(), req.Username, req.Password); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

// HandleLogout ends the session
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	s.deps.Session.Logout(r.Context())
	s.respondJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

// ========== Unit handlers ==========

// HandleListUnits lists units ordered by name
func (s *Server) HandleListUnits(w http.ResponseWriter, r *http.Request) {
	view := s.deps.Units.View()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"units":   view.Units,
		"loading": view.Loading,
		"error":   errString(view.Err),
	})
}

// HandleGetUnit returns one unit
func (s *Server) HandleGetUnit(w http.ResponseWriter, r *http.Request) {
	unit, ok := s.deps.Units.Get(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "unit not found")
		return
	}
	s.respondJSON(w, http.StatusOK, unit)
}

// ========== Alert handlers ==========

// HandleListAlerts lists unacknowledged alerts, newest first
func (s *Server) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	view := s.deps.Alerts.View()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":  view.Alerts,
		"loading": view.Loading,
		"error":   errString(view.Err),
	})
}

// HandleAcknowledgeAlert acknowledges an alert
func (s *Server) HandleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Alerts.Acknowledge(r.Context(), id); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Alert acknowledged"})
}

// ========== Log handlers ==========

// HandleListLogs returns one page of connection logs
func (s *Server) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage == 0 {
		perPage = api.DefaultPerPage
	}

	logs, err := s.deps.Logs.Page(r.Context(), page, perPage)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, logs)
}

// ========== User handlers ==========

// HandleListUsers reloads and lists user accounts
func (s *Server) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Roster.Load(r.Context()); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"users": s.deps.Roster.List()})
}

// HandleUpdateUser changes role or active flag of a user
func (s *Server) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var up models.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if up.Role != nil && *up.Role != models.RoleAdmin && *up.Role != models.RoleOperator {
		s.respondError(w, http.StatusBadRequest, "invalid role")
		return
	}

	if err := s.deps.Roster.Update(r.Context(), chi.URLParam(r, "id"), up); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"users": s.deps.Roster.List()})
}

// HandleDeleteUser deletes a user
func (s *Server) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Roster.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondJSON responds with JSON
func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

// respondError responds with error
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"message": message,
	})
}

func errString(err error) interface{} {
	if err == nil {
		return nil
	}
	return err.Error()
}
