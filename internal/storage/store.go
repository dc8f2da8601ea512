package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByLogin(ctx context.Context, login string) (*User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*User, error)
	CountActiveAdmins(ctx context.Context) (int64, error)

	// Device methods
	CreateDevice(ctx context.Context, device *Device) error
	GetDevice(ctx context.Context, id string) (*Device, error)
	GetDeviceByName(ctx context.Context, name string) (*Device, error)
	UpdateDevice(ctx context.Context, device *Device) error
	DeleteDevice(ctx context.Context, id string) error
	ListDevices(ctx context.Context) ([]*Device, error)
	ListDevicesSeenBefore(ctx context.Context, before time.Time) ([]*Device, error)

	// Status history methods
	AddStatusSample(ctx context.Context, sample *StatusSample) error
	LatestStatusSamples(ctx context.Context) (map[string]*StatusSample, error)
	ListStatusSamples(ctx context.Context, deviceID string, limit int) ([]*StatusSample, error)

	// Alert methods
	CreateAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, id string) (*Alert, error)
	ListUnacknowledgedAlerts(ctx context.Context) ([]*Alert, error)
	AcknowledgeAlert(ctx context.Context, id, userID string, at time.Time) (*Alert, error)

	// Connection log methods
	CreateLog(ctx context.Context, entry *LogEntry) error
	ListLogs(ctx context.Context, limit, offset int) ([]*LogEntry, int64, error)

	// Registration request methods
	CreateRegistrationRequest(ctx context.Context, req *RegistrationRequest) error
	GetRegistrationRequest(ctx context.Context, id string) (*RegistrationRequest, error)
	UpdateRegistrationRequest(ctx context.Context, req *RegistrationRequest) error
	ListPendingRegistrationRequests(ctx context.Context) ([]*RegistrationRequest, error)
	PendingRequestExists(ctx context.Context, username, email string) (bool, error)

	// Refresh token methods
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, jti string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, jti string) error

	// Close the store
	Close() error
}
