package api

import (
	"context"
	"net/url"

	"github.com/unitlink/unitlink/internal/models"
)

// AlertsAPI wraps the /alerts endpoints
type AlertsAPI struct {
	doer Doer
}

// NewAlertsAPI creates an AlertsAPI
func NewAlertsAPI(d Doer) *AlertsAPI {
	return &AlertsAPI{doer: d}
}

// Unacknowledged returns the open alerts, newest first
func (a *AlertsAPI) Unacknowledged(ctx context.Context) ([]models.Alert, error) {
	var resp struct {
		Alerts []models.Alert `json:"alerts"`
	}
	if err := get(ctx, a.doer, "/alerts/unacknowledged", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Alerts == nil {
		resp.Alerts = []models.Alert{}
	}
	return resp.Alerts, nil
}

// Acknowledge marks an alert as handled
func (a *AlertsAPI) Acknowledge(ctx context.Context, id string) error {
	return post(ctx, a.doer, "/alerts/"+url.PathEscape(id)+"/acknowledge", nil, nil)
}
