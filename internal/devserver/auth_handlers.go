package devserver

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/auth"
	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/storage"
	"github.com/unitlink/unitlink/pkg/crypto"
)

// HandleHealth handles health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": s.config.Server.Name,
		"clients": s.hub.Clients(),
	})
}

// HandleLogin handles user login by username or email
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.store.GetUserByLogin(r.Context(), req.Username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.respondStoreError(w, err, "")
		return
	}
	if user == nil || !user.IsActive || !s.auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "Invalid credentials or inactive user")
		return
	}

	now := s.now()
	user.LastLoginAt = &now
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		s.respondStoreError(w, err, "User not found")
		return
	}

	pair, err := s.auth.GenerateTokenPair(user.ID, user.Role)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate tokens")
		s.respondError(w, http.StatusInternalServerError, "An internal error occurred during login.")
		return
	}
	if err := s.store.SaveRefreshToken(r.Context(), &storage.RefreshToken{
		JTI:       pair.RefreshID,
		UserID:    user.ID,
		ExpiresAt: pair.RefreshExpiresAt,
	}); err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	s.logEvent(r, models.LogUserAction, "User '"+user.Username+"' logged in", nil, &user.ID)

	s.respondJSON(w, http.StatusOK, models.LoginResponse{
		Message:      "Login successful",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserRole:     user.Role,
		Username:     user.Username,
		UserID:       user.ID,
	})
}

// HandleRefresh exchanges a refresh token for a new access token
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.refreshClaims(w, r)
	if !ok {
		return
	}

	user, err := s.store.GetUser(r.Context(), claims.Subject)
	if err != nil || !user.IsActive {
		s.respondError(w, http.StatusUnauthorized, "User is unknown or inactive")
		return
	}

	access, err := s.auth.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate access token")
		s.respondError(w, http.StatusInternalServerError, "Failed to refresh token")
		return
	}

	s.respondJSON(w, http.StatusOK, models.RefreshResponse{AccessToken: access})
}

// HandleLogout revokes the presented refresh token
func (s *RESTServer) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.refreshClaims(w, r)
	if !ok {
		return
	}

	if err := s.store.RevokeRefreshToken(r.Context(), claims.ID); err != nil {
		s.respondStoreError(w, err, "Token not found")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

// refreshClaims validates the bearer refresh token against the revocation list
func (s *RESTServer) refreshClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	token, ok := bearerToken(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "Missing Authorization Header")
		return nil, false
	}

	claims, err := s.auth.ValidateToken(token, auth.TypeRefresh)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "Token is invalid or has expired")
		return nil, false
	}

	stored, err := s.store.GetRefreshToken(r.Context(), claims.ID)
	if err != nil || stored.Revoked || stored.UserID != claims.Subject {
		s.respondError(w, http.StatusUnauthorized, "Token has been revoked")
		return nil, false
	}

	return claims, true
}

// HandleRegisterRequest records a request for a new account
func (s *RESTServer) HandleRegisterRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestedUsername string `json:"requested_username" validate:"required,max=80"`
		Email             string `json:"email" validate:"required,email,max=120"`
		FullName          string `json:"full_name" validate:"max=150"`
		Rank              string `json:"rank" validate:"max=100"`
		Reason            string `json:"reason"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	exists, err := s.store.UserExists(ctx, req.RequestedUsername, req.Email)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}
	if exists {
		s.respondError(w, http.StatusConflict, "User with this username or email already exists.")
		return
	}

	pending, err := s.store.PendingRequestExists(ctx, req.RequestedUsername, req.Email)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}
	if pending {
		s.respondError(w, http.StatusConflict, "A pending registration request with this username or email already exists.")
		return
	}

	if err := s.store.CreateRegistrationRequest(ctx, &storage.RegistrationRequest{
		RequestedUsername: req.RequestedUsername,
		Email:             req.Email,
		FullName:          req.FullName,
		Rank:              req.Rank,
		Reason:            req.Reason,
		Status:            string(models.RegistrationPending),
		RequestedAt:       s.now(),
	}); err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]string{
		"message": "Registration request submitted successfully. Waiting for administrator approval.",
	})
}

// HandleSetPassword activates an approved account from its setup link
func (s *RESTServer) HandleSetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	claims, err := s.auth.ValidateToken(req.Token, auth.TypePasswordSetup)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid or expired setup link")
		return
	}

	user, err := s.store.GetUser(r.Context(), claims.Subject)
	if err != nil {
		s.respondStoreError(w, err, "User not found")
		return
	}
	if user.IsActive {
		s.respondError(w, http.StatusBadRequest, "Password has already been set")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to set password")
		return
	}
	user.PasswordHash = hash
	user.IsActive = true
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		s.respondStoreError(w, err, "User not found")
		return
	}

	s.logEvent(r, models.LogUserAction, "User '"+user.Username+"' activated the account", nil, &user.ID)
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Password set. You can now log in."})
}

// HandleChangePassword changes the password of the caller
func (s *RESTServer) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required,min=8"`
		ConfirmPassword string `json:"confirm_password" validate:"required"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		s.respondError(w, http.StatusBadRequest, "New passwords do not match")
		return
	}

	user, err := s.store.GetUser(r.Context(), claimsFrom(r.Context()).Subject)
	if err != nil {
		s.respondStoreError(w, err, "User not found")
		return
	}
	if !s.auth.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		s.respondError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}

	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to change password")
		return
	}
	user.PasswordHash = hash
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		s.respondStoreError(w, err, "User not found")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

// HandleUpdateUsername renames the caller
func (s *RESTServer) HandleUpdateUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewUsername string `json:"new_username" validate:"required,min=3,max=80"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	user, err := s.store.GetUser(ctx, claimsFrom(ctx).Subject)
	if err != nil {
		s.respondStoreError(w, err, "User not found")
		return
	}

	if req.NewUsername != user.Username {
		taken, err := s.store.GetUserByLogin(ctx, req.NewUsername)
		if err == nil && taken.ID != user.ID {
			s.respondError(w, http.StatusConflict, "Username is already taken")
			return
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.respondStoreError(w, err, "")
			return
		}

		user.Username = req.NewUsername
		if err := s.store.UpdateUser(ctx, user); err != nil {
			s.respondStoreError(w, err, "User not found")
			return
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"message":  "Username updated",
		"username": user.Username,
	})
}
