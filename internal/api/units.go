package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/unitlink/unitlink/internal/models"
)

// UnitsAPI wraps the /devices endpoints
type UnitsAPI struct {
	doer Doer
}

// NewUnitsAPI creates a UnitsAPI
func NewUnitsAPI(d Doer) *UnitsAPI {
	return &UnitsAPI{doer: d}
}

type unitResponse struct {
	Message string      `json:"message"`
	Device  models.Unit `json:"device"`
}

// List returns every unit
func (a *UnitsAPI) List(ctx context.Context) ([]models.Unit, error) {
	var resp struct {
		Devices []models.Unit `json:"devices"`
	}
	if err := get(ctx, a.doer, "/devices", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Devices == nil {
		resp.Devices = []models.Unit{}
	}
	return resp.Devices, nil
}

// Get returns one unit
func (a *UnitsAPI) Get(ctx context.Context, id string) (*models.Unit, error) {
	var resp unitResponse
	if err := get(ctx, a.doer, "/devices/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Device, nil
}

// Create adds a unit
func (a *UnitsAPI) Create(ctx context.Context, in models.UnitInput) (*models.Unit, error) {
	var resp unitResponse
	if err := post(ctx, a.doer, "/devices", in, &resp); err != nil {
		return nil, err
	}
	return &resp.Device, nil
}

// Update changes the fields set in in
func (a *UnitsAPI) Update(ctx context.Context, id string, in models.UnitInput) (*models.Unit, error) {
	var resp unitResponse
	if err := put(ctx, a.doer, "/devices/"+url.PathEscape(id), in, &resp); err != nil {
		return nil, err
	}
	return &resp.Device, nil
}

// Delete removes a unit
func (a *UnitsAPI) Delete(ctx context.Context, id string) error {
	return del(ctx, a.doer, "/devices/"+url.PathEscape(id), nil)
}

// History returns the most recent link quality samples of a unit, newest first
func (a *UnitsAPI) History(ctx context.Context, id string, limit int) ([]models.StatusSample, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		History []models.StatusSample `json:"history"`
	}
	if err := get(ctx, a.doer, "/devices/"+url.PathEscape(id)+"/history", q, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}
