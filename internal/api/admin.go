package api

import (
	"context"
	"net/url"

	"github.com/unitlink/unitlink/internal/models"
)

// AdminAPI wraps the /admin endpoints
type AdminAPI struct {
	doer Doer
}

// NewAdminAPI creates an AdminAPI
func NewAdminAPI(d Doer) *AdminAPI {
	return &AdminAPI{doer: d}
}

// Approval is the result of approving a registration request
type Approval struct {
	Message     string `json:"message"`
	Instruction string `json:"instruction"`
	SetupURL    string `json:"setup_url"`
}

// Users lists every user
func (a *AdminAPI) Users(ctx context.Context) ([]models.User, error) {
	var resp struct {
		Users []models.User `json:"users"`
	}
	if err := get(ctx, a.doer, "/admin/users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// UpdateUser changes the role or active flag of a user
func (a *AdminAPI) UpdateUser(ctx context.Context, id string, up models.UserUpdate) (*models.User, error) {
	var resp struct {
		User models.User `json:"user"`
	}
	if err := put(ctx, a.doer, "/admin/users/"+url.PathEscape(id), up, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// DeleteUser removes a user
func (a *AdminAPI) DeleteUser(ctx context.Context, id string) error {
	return del(ctx, a.doer, "/admin/users/"+url.PathEscape(id), nil)
}

// PendingRequests lists registration requests awaiting review
func (a *AdminAPI) PendingRequests(ctx context.Context) ([]models.RegistrationRequest, error) {
	var resp struct {
		Requests []models.RegistrationRequest `json:"requests"`
	}
	if err := get(ctx, a.doer, "/admin/registration_requests", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// ApproveRequest creates an inactive account for the request
func (a *AdminAPI) ApproveRequest(ctx context.Context, id string) (*Approval, error) {
	var resp Approval
	if err := post(ctx, a.doer, "/admin/registration_requests/"+url.PathEscape(id)+"/approve", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RejectRequest rejects a registration request
func (a *AdminAPI) RejectRequest(ctx context.Context, id string) error {
	return post(ctx, a.doer, "/admin/registration_requests/"+url.PathEscape(id)+"/reject", nil, nil)
}
