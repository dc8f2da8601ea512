package devserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unitlink/unitlink/internal/models"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// HandleListAlerts lists unacknowledged alerts, newest first
func (s *RESTServer) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListUnacknowledgedAlerts(r.Context())
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	out := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Model())
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"alerts": out})
}

// HandleAcknowledgeAlert acknowledges an alert on behalf of the caller
func (s *RESTServer) HandleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := claimsFrom(ctx).Subject

	alert, err := s.store.AcknowledgeAlert(ctx, chi.URLParam(r, "id"), caller, s.now())
	if err != nil {
		s.respondStoreError(w, err, "Alert not found")
		return
	}

	out := alert.Model()
	s.logEvent(r, models.LogUserAction, fmt.Sprintf("Alert acknowledged: %s", out.Message), alert.DeviceID, &caller)

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Alert acknowledged.",
		"alert":   out,
	})
}

// HandleListLogs returns one page of connection logs, newest first
func (s *RESTServer) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := min(queryInt(r, "per_page", defaultPerPage), maxPerPage)

	entries, total, err := s.store.ListLogs(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	logs := make([]models.LogEntry, 0, len(entries))
	for _, e := range entries {
		logs = append(logs, e.Model())
	}

	s.respondJSON(w, http.StatusOK, models.LogPage{
		Logs:       logs,
		Pagination: models.NewPagination(page, perPage, total),
	})
}

// queryInt reads a positive integer query parameter, falling back to def
func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 1 {
		return def
	}
	return n
}
