package api

import (
	"context"
	"net/http"

	"github.com/unitlink/unitlink/internal/gateway"
	"github.com/unitlink/unitlink/internal/models"
)

// AuthAPI wraps the /auth endpoints
type AuthAPI struct {
	doer Doer
}

// NewAuthAPI creates an AuthAPI
func NewAuthAPI(d Doer) *AuthAPI {
	return &AuthAPI{doer: d}
}

// Login exchanges a username or email and password for a token pair
func (a *AuthAPI) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := post(ctx, a.doer, gateway.LoginPath, map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes refreshToken on the server
func (a *AuthAPI) Logout(ctx context.Context, refreshToken string) error {
	return a.doer.Do(ctx, gateway.Request{
		Method: http.MethodDelete,
		Path:   gateway.LogoutPath,
		Header: gateway.BearerHeader(refreshToken),
	}, nil)
}

// RegistrationInput is a request for a new account
type RegistrationInput struct {
	RequestedUsername string `json:"requested_username"`
	Email             string `json:"email"`
	FullName          string `json:"full_name,omitempty"`
	Rank              string `json:"rank,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// RequestRegistration submits a registration request for admin review
func (a *AuthAPI) RequestRegistration(ctx context.Context, in RegistrationInput) (string, error) {
	var resp MessageResponse
	if err := post(ctx, a.doer, "/auth/register_request", in, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ChangePassword changes the password of the current user
func (a *AuthAPI) ChangePassword(ctx context.Context, current, next string) error {
	return post(ctx, a.doer, "/auth/change-password", map[string]string{
		"current_password": current,
		"new_password":     next,
		"confirm_password": next,
	}, nil)
}

// SetPassword activates an approved account with the setup token handed out on approval
func (a *AuthAPI) SetPassword(ctx context.Context, token, password string) error {
	return post(ctx, a.doer, "/auth/set-password", map[string]string{
		"token":    token,
		"password": password,
	}, nil)
}

// UpdateUsername renames the current user and returns the name the server stored
func (a *AuthAPI) UpdateUsername(ctx context.Context, username string) (string, error) {
	var resp struct {
		Username string `json:"username"`
	}
	if err := put(ctx, a.doer, "/auth/profile/username", map[string]string{"new_username": username}, &resp); err != nil {
		return "", err
	}
	if resp.Username == "" {
		return username, nil
	}
	return resp.Username, nil
}
