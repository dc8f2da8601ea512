package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitlink/unitlink/internal/gateway"
	"github.com/unitlink/unitlink/internal/models"
)

type recordingDoer struct {
	reqs     []gateway.Request
	response string
	err      error
}

func (d *recordingDoer) Do(_ context.Context, req gateway.Request, out interface{}) error {
	d.reqs = append(d.reqs, req)
	if d.err != nil {
		return d.err
	}
	if out != nil && d.response != "" {
		return json.Unmarshal([]byte(d.response), out)
	}
	return nil
}

func TestLogoutSendsRefreshToken(t *testing.T) {
	t.Parallel()

	d := &recordingDoer{}
	require.NoError(t, NewAuthAPI(d).Logout(context.Background(), "refresh-1"))

	require.Len(t, d.reqs, 1)
	assert.Equal(t, http.MethodDelete, d.reqs[0].Method)
	assert.Equal(t, gateway.LogoutPath, d.reqs[0].Path)
	assert.Equal(t, "Bearer refresh-1", d.reqs[0].Header.Get("Authorization"))
}

func TestLoginDecodesResponse(t *testing.T) {
	t.Parallel()

	d := &recordingDoer{response: `{"message":"Login successful","access_token":"a","refresh_token":"r","user_role":"ADMIN","username":"admin","user_id":"42"}`}
	resp, err := NewAuthAPI(d).Login(context.Background(), "admin", "secret")
	require.NoError(t, err)

	assert.Equal(t, "a", resp.AccessToken)
	assert.Equal(t, "r", resp.RefreshToken)
	assert.Equal(t, "ADMIN", resp.UserRole)
	assert.Equal(t, "42", resp.UserID)
	assert.Equal(t, map[string]string{"username": "admin", "password": "secret"}, d.reqs[0].Body)
}

func TestUnitsList(t *testing.T) {
	t.Parallel()

	d := &recordingDoer{response: `{"devices":[{"id":"u1","name":"Alpha","position":[50.45,30.52],"status":"online","unit_type":"FIELD_UNIT"}]}`}
	units, err := NewUnitsAPI(d).List(context.Background())
	require.NoError(t, err)

	require.Len(t, units, 1)
	assert.Equal(t, "u1", units[0].ID)
	assert.Equal(t, models.UnitStatusOnline, units[0].Status)
	require.NotNil(t, units[0].Position)
	assert.InDelta(t, 30.52, units[0].Position.Lng, 1e-9)
}

func TestUnitsListEmpty(t *testing.T) {
	t.Parallel()

	units, err := NewUnitsAPI(&recordingDoer{response: `{}`}).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, units)
	assert.Empty(t, units)
}

func TestPathsAreEscaped(t *testing.T) {
	t.Parallel()

	d := &recordingDoer{}
	require.NoError(t, NewAlertsAPI(d).Acknowledge(context.Background(), "a/b"))
	assert.Equal(t, "/alerts/a%2Fb/acknowledge", d.reqs[0].Path)
}

func TestLogsPageDefaults(t *testing.T) {
	t.Parallel()

	d := &recordingDoer{response: `{"logs":[],"pagination":{"current_page":1,"per_page":20,"total_pages":0,"total_items":0,"has_next":false,"has_prev":false}}`}
	page, err := NewLogsAPI(d).Page(context.Background(), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "1", d.reqs[0].Query.Get("page"))
	assert.Equal(t, "20", d.reqs[0].Query.Get("per_page"))
	assert.Equal(t, 1, page.Pagination.CurrentPage)
}

func TestErrorsPropagate(t *testing.T) {
	t.Parallel()

	apiErr := &gateway.APIError{StatusCode: http.StatusConflict, Message: "Device with name 'Alpha' already exists."}
	d := &recordingDoer{err: apiErr}

	_, err := NewUnitsAPI(d).Create(context.Background(), models.UnitInput{})
	assert.ErrorIs(t, err, gateway.ErrValidation)
}
