package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitlink/unitlink/internal/gateway"
	"github.com/unitlink/unitlink/internal/livestate"
	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/session"
)

type fakeSession struct {
	snap     session.Snapshot
	loginErr error
}

func (f *fakeSession) Snapshot() session.Snapshot { return f.snap }

func (f *fakeSession) Login(_ context.Context, username, _ string) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	f.snap = session.Snapshot{
		State:           session.StateAuthenticated,
		IsAuthenticated: true,
		CurrentUser:     &models.CurrentUser{ID: "1", Username: username, Role: models.RoleOperator},
	}
	return nil
}

func (f *fakeSession) Logout(context.Context) {
	f.snap = session.Snapshot{State: session.StateAnonymous}
}

type fakeUnits struct{ units []models.Unit }

func (f *fakeUnits) View() livestate.UnitsView { return livestate.UnitsView{Units: f.units} }

func (f *fakeUnits) Get(id string) (models.Unit, bool) {
	for _, u := range f.units {
		if u.ID == id {
			return u, true
		}
	}
	return models.Unit{}, false
}

type fakeAlerts struct {
	alerts []models.Alert
	ackErr error
}

func (f *fakeAlerts) View() livestate.AlertsView { return livestate.AlertsView{Alerts: f.alerts} }

func (f *fakeAlerts) Acknowledge(_ context.Context, id string) error {
	if f.ackErr != nil {
		return f.ackErr
	}
	for i, a := range f.alerts {
		if a.ID == id {
			f.alerts = append(f.alerts[:i:i], f.alerts[i+1:]...)
		}
	}
	return nil
}

type fakeLogs struct{ page, perPage int }

func (f *fakeLogs) Page(_ context.Context, page, perPage int) (*models.LogPage, error) {
	f.page, f.perPage = page, perPage
	return &models.LogPage{Logs: []models.LogEntry{}, Pagination: models.NewPagination(page, perPage, 0)}, nil
}

type fakeRoster struct{ users []models.User }

func (f *fakeRoster) Load(context.Context) error { return nil }
func (f *fakeRoster) List() []models.User { return f.users }
func (f *fakeRoster) Update(context.Context, string, models.UserUpdate) error {
	return nil
}
func (f *fakeRoster) Delete(context.Context, string) error { return nil }

func signedIn(role string) *fakeSession {
	return &fakeSession{snap: session.Snapshot{
		State:           session.StateAuthenticated,
		IsAuthenticated: true,
		CurrentUser:     &models.CurrentUser{ID: "1", Username: "op", Role: role},
	}}
}

func newTestServer(sess *fakeSession) (*Server, *fakeAlerts, *fakeLogs) {
	alerts := &fakeAlerts{alerts: []models.Alert{{ID: "a-2"}, {ID: "a-1"}}}
	logs := &fakeLogs{}
	s := NewServer(Deps{
		Session: sess,
		Units:   &fakeUnits{units: []models.Unit{{ID: "u-1", Name: "Alpha", Status: models.UnitStatusOnline}}},
		Alerts:  alerts,
		Logs:    logs,
		Roster:  &fakeRoster{users: []models.User{{ID: "1", Username: "admin"}}},
	})
	return s, alerts, logs
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(&fakeSession{snap: session.Snapshot{State: session.StateAnonymous}})
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", decode(t, rec)["session"])
}

func TestRequiresSession(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(&fakeSession{snap: session.Snapshot{State: session.StateAnonymous}})
	for _, path := range []string{"/api/units", "/api/alerts", "/api/logs"} {
		rec := do(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "not signed in", decode(t, rec)["message"])
	}
}

func TestLoginThenListUnits(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(&fakeSession{snap: session.Snapshot{State: session.StateAnonymous}})

	rec := do(t, s, http.MethodPost, "/api/session/login", `{"username":"op","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["is_authenticated"])

	rec = do(t, s, http.MethodGet, "/api/units", "")
	require.Equal(t, http.StatusOK, rec.Code)
	units := decode(t, rec)["units"].([]interface{})
	require.Len(t, units, 1)
	assert.Equal(t, "Alpha", units[0].(map[string]interface{})["name"])

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/units/u-1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/units/u-9", "").Code)
}

func TestLoginFailure(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{
		snap:     session.Snapshot{State: session.StateAnonymous},
		loginErr: &gateway.APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid username or password"},
	}
	s, _, _ := newTestServer(sess)

	rec := do(t, s, http.MethodPost, "/api/session/login", `{"username":"op","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/session/login", `{"username":"op"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgeAlert(t *testing.T) {
	t.Parallel()

	s, alerts, _ := newTestServer(signedIn(models.RoleOperator))

	rec := do(t, s, http.MethodPost, "/api/alerts/a-1/acknowledge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, alerts.alerts, 1)

	alerts.ackErr = fmt.Errorf("%w: connection refused", gateway.ErrNetwork)
	rec = do(t, s, http.MethodPost, "/api/alerts/a-2/acknowledge", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Len(t, alerts.alerts, 1)
}

func TestListLogsDefaults(t *testing.T) {
	t.Parallel()

	s, _, logs := newTestServer(signedIn(models.RoleOperator))

	rec := do(t, s, http.MethodGet, "/api/logs?page=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, logs.page)
	assert.Equal(t, 20, logs.perPage)
	assert.Contains(t, decode(t, rec), "pagination")
}

func TestUsersRequireAdmin(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(signedIn(models.RoleOperator))
	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodGet, "/api/users", "").Code)

	s, _, _ = newTestServer(signedIn(models.RoleAdmin))
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/users", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/api/users/1", `{"role":"ROOT"}`).Code)
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/users/1", "").Code)
}
