package models

import (
	"time"
)

// User roles
const (
	RoleAdmin    = "ADMIN"
	RoleOperator = "OPERATOR"
)

// User represents a dashboard account as seen by administrators
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name,omitempty"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// UserUpdate is a partial admin edit of a user
type UserUpdate struct {
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// Apply merges the update into u
func (up UserUpdate) Apply(u User) User {
	if up.Role != nil {
		u.Role = *up.Role
	}
	if up.IsActive != nil {
		u.IsActive = *up.IsActive
	}
	return u
}

// RegistrationStatus is the state of a registration request
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "PENDING"
	RegistrationApproved RegistrationStatus = "APPROVED"
	RegistrationRejected RegistrationStatus = "REJECTED"
)

// RegistrationRequest is a request for a new account awaiting admin review
type RegistrationRequest struct {
	ID                string             `json:"id"`
	RequestedUsername string             `json:"requested_username"`
	Email             string             `json:"email"`
	FullName          string             `json:"full_name,omitempty"`
	Rank              string             `json:"rank,omitempty"`
	Reason            string             `json:"reason,omitempty"`
	Status            RegistrationStatus `json:"status"`
	RequestedAt       time.Time          `json:"requested_at"`
}

// CurrentUser is the identity part of a session
type CurrentUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
