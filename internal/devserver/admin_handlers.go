package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/storage"
	"github.com/unitlink/unitlink/pkg/crypto"
)

// HandleListRegistrationRequests lists pending requests, oldest first
func (s *RESTServer) HandleListRegistrationRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.store.ListPendingRegistrationRequests(r.Context())
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	out := make([]models.RegistrationRequest, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, req.Model())
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"requests": out})
}

// HandleApproveRequest creates an inactive operator account for a request
// and hands back a password setup link for the administrator to pass on.
func (s *RESTServer) HandleApproveRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := claimsFrom(ctx).Subject

	req, err := s.store.GetRegistrationRequest(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "Registration request not found")
		return
	}
	if req.Status != string(models.RegistrationPending) {
		s.respondError(w, http.StatusBadRequest, "Request already processed.")
		return
	}

	now := s.now()
	req.ReviewedBy = &caller
	req.ReviewedAt = &now

	exists, err := s.store.UserExists(ctx, req.RequestedUsername, req.Email)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}
	if exists {
		req.Status = string(models.RegistrationRejected)
		if err := s.store.UpdateRegistrationRequest(ctx, req); err != nil {
			s.respondStoreError(w, err, "Registration request not found")
			return
		}
		s.respondError(w, http.StatusConflict, fmt.Sprintf(
			"Cannot approve. User with username '%s' or email '%s' already exists. Request rejected.",
			req.RequestedUsername, req.Email))
		return
	}

	// The account stays unusable until the setup link is followed
	hash, err := crypto.HashPassword(uuid.New().String())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Internal server error during approval")
		return
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}
	defer tx.Rollback()

	user := &storage.User{
		Username:     req.RequestedUsername,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: hash,
		Role:         models.RoleOperator,
		IsActive:     false,
		CreatedAt:    now,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		s.respondStoreError(w, err, "")
		return
	}
	req.Status = string(models.RegistrationApproved)
	if err := tx.UpdateRegistrationRequest(ctx, req); err != nil {
		s.respondStoreError(w, err, "Registration request not found")
		return
	}

	token, err := s.auth.GenerateSetupToken(user.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate setup token")
		s.respondError(w, http.StatusInternalServerError, "Internal server error during approval")
		return
	}

	if err := tx.Commit(); err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	s.logEvent(r, models.LogUserAction, fmt.Sprintf("Registration of '%s' approved", user.Username), nil, &caller)

	s.respondJSON(w, http.StatusOK, map[string]string{
		"message":     fmt.Sprintf("Request approved. User '%s' created as inactive.", user.Username),
		"instruction": "Please PROVIDE THIS SETUP LINK to the user SECURELY:",
		"setup_url":   strings.TrimRight(s.config.DevServer.FrontendURL, "/") + "/set-password?token=" + url.QueryEscape(token),
	})
}

// HandleRejectRequest rejects a pending request
func (s *RESTServer) HandleRejectRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := claimsFrom(ctx).Subject

	req, err := s.store.GetRegistrationRequest(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "Registration request not found")
		return
	}
	if req.Status != string(models.RegistrationPending) {
		s.respondError(w, http.StatusBadRequest, "Request already processed.")
		return
	}

	now := s.now()
	req.Status = string(models.RegistrationRejected)
	req.ReviewedBy = &caller
	req.ReviewedAt = &now
	if err := s.store.UpdateRegistrationRequest(ctx, req); err != nil {
		s.respondStoreError(w, err, "Registration request not found")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Registration request for '%s' rejected.", req.RequestedUsername),
	})
}

// HandleListUsers lists every account
func (s *RESTServer) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	out := make([]models.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Model())
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"users": out})
}

// HandleUpdateUser changes the role or active flag of an account
func (s *RESTServer) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role     *string `json:"role" validate:"oneof=ADMIN OPERATOR"`
		IsActive *bool   `json:"is_active"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	user, err := s.store.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "User not found")
		return
	}

	updated := models.UserUpdate{Role: req.Role, IsActive: req.IsActive}.Apply(user.Model())
	if err := s.keepAnAdmin(r, user, updated.Role == models.RoleAdmin && updated.IsActive); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user.Role = updated.Role
	user.IsActive = updated.IsActive
	if err := s.store.UpdateUser(ctx, user); err != nil {
		s.respondStoreError(w, err, "User not found")
		return
	}

	caller := claimsFrom(ctx).Subject
	s.logEvent(r, models.LogUserAction, fmt.Sprintf("User '%s' updated", user.Username), nil, &caller)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "User updated successfully.",
		"user":    user.Model(),
	})
}

// HandleDeleteUser removes an account
func (s *RESTServer) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := claimsFrom(ctx).Subject

	user, err := s.store.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err, "User not found")
		return
	}
	if user.ID == caller {
		s.respondError(w, http.StatusBadRequest, "You cannot delete your own account.")
		return
	}
	if err := s.keepAnAdmin(r, user, false); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.DeleteUser(ctx, user.ID); err != nil {
		s.respondStoreError(w, err, "User not found")
		return
	}

	s.logEvent(r, models.LogUserAction, fmt.Sprintf("User '%s' deleted", user.Username), nil, &caller)
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully."})
}

var errLastAdmin = errors.New("cannot remove the last active administrator")

// keepAnAdmin refuses a change that would leave no active administrator
func (s *RESTServer) keepAnAdmin(r *http.Request, user *storage.User, stillAdmin bool) error {
	if stillAdmin || user.Role != models.RoleAdmin || !user.IsActive {
		return nil
	}
	count, err := s.store.CountActiveAdmins(r.Context())
	if err != nil {
		return fmt.Errorf("count administrators: %w", err)
	}
	if count <= 1 {
		return errLastAdmin
	}
	return nil
}
