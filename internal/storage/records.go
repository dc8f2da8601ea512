package storage

import (
	"time"

	"github.com/unitlink/unitlink/internal/models"
)

// User is a stored account
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;size:80;not null"`
	Email        string `gorm:"uniqueIndex;size:120;not null"`
	FullName     string `gorm:"size:150"`
	PasswordHash string `gorm:"size:128;not null"`
	Role         string `gorm:"size:16;not null;default:OPERATOR"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// Model converts the record to its API form
func (u *User) Model() models.User {
	return models.User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// Device is a stored unit
type Device struct {
	ID          string  `gorm:"primaryKey;size:36"`
	Name        string  `gorm:"uniqueIndex;size:100;not null"`
	Description *string `gorm:"type:text"`
	Latitude    *float64
	Longitude   *float64
	UnitType    string `gorm:"index;size:32;not null;default:OTHER"`
	Status      string `gorm:"size:16;not null;default:UNKNOWN"`
	LastSeen    *time.Time
	CreatedAt   time.Time
	AddedBy     *string `gorm:"size:36"`
}

// Model converts the record to its API form. latest may be nil.
func (d *Device) Model(latest *StatusSample) models.Unit {
	u := models.Unit{
		ID:       d.ID,
		Name:     d.Name,
		UnitType: models.UnitType(d.UnitType),
		Status:   models.ParseUnitStatus(d.Status),
		LastSeen: d.LastSeen,
	}
	if d.Description != nil {
		u.Description = *d.Description
	}
	if d.Latitude != nil && d.Longitude != nil {
		u.Position = &models.Position{Lat: *d.Latitude, Lng: *d.Longitude}
	}
	if latest != nil {
		ts := latest.Timestamp
		u.LatestTelemetry = &models.Telemetry{
			SignalRSSI:        latest.SignalRSSI,
			LatencyMs:         latest.LatencyMs,
			PacketLossPercent: latest.PacketLossPercent,
			Timestamp:         &ts,
		}
	}
	return u
}

// StatusSample is one stored link quality measurement
type StatusSample struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement"`
	DeviceID          string    `gorm:"index;size:36;not null"`
	Timestamp         time.Time `gorm:"index;not null"`
	SignalRSSI        *int
	LatencyMs         *int
	PacketLossPercent *float64
}

// TableName overrides the table name
func (StatusSample) TableName() string {
	return "device_status_history"
}

// Model converts the record to its API form
func (s *StatusSample) Model() models.StatusSample {
	return models.StatusSample{
		Timestamp:         s.Timestamp,
		SignalRSSI:        s.SignalRSSI,
		LatencyMs:         s.LatencyMs,
		PacketLossPercent: s.PacketLossPercent,
	}
}

// Alert is a stored alert
type Alert struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Timestamp      time.Time `gorm:"index;not null"`
	Severity       string    `gorm:"size:16;not null;default:WARNING"`
	Message        string    `gorm:"type:text;not null"`
	Acknowledged   bool      `gorm:"index;not null;default:false"`
	AcknowledgedAt *time.Time
	AcknowledgedBy *string `gorm:"size:36"`
	DeviceID       *string `gorm:"index;size:36"`
	Device         *Device `gorm:"foreignKey:DeviceID"`
}

// Model converts the record to its API form
func (a *Alert) Model() models.Alert {
	out := models.Alert{
		ID:         a.ID,
		Message:    a.Message,
		Severity:   models.AlertSeverity(a.Severity),
		Timestamp:  a.Timestamp,
		DeviceName: "System",
	}
	if a.DeviceID != nil {
		out.DeviceID = *a.DeviceID
		out.DeviceName = "N/A"
	}
	if a.Device != nil {
		out.DeviceName = a.Device.Name
	}
	return out
}

// LogEntry is a stored connection log event
type LogEntry struct {
	ID        int64            `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time        `gorm:"index;not null"`
	EventType string           `gorm:"size:32;not null"`
	Message   string           `gorm:"type:text;not null"`
	Details   models.Variables `gorm:"type:text"`
	DeviceID  *string          `gorm:"index;size:36"`
	Device    *Device          `gorm:"foreignKey:DeviceID"`
	UserID    *string          `gorm:"index;size:36"`
	User      *User            `gorm:"foreignKey:UserID"`
}

// TableName overrides the table name
func (LogEntry) TableName() string {
	return "connection_logs"
}

// Model converts the record to its API form
func (l *LogEntry) Model() models.LogEntry {
	out := models.LogEntry{
		ID:         l.ID,
		Timestamp:  l.Timestamp,
		EventType:  models.LogEventType(l.EventType),
		Message:    l.Message,
		Details:    l.Details,
		DeviceID:   l.DeviceID,
		DeviceName: "N/A",
		UserID:     l.UserID,
	}
	if l.Device != nil {
		out.DeviceName = l.Device.Name
	}
	if l.User != nil {
		name := l.User.Username
		out.UserName = &name
	}
	return out
}

// RegistrationRequest is a stored account request
type RegistrationRequest struct {
	ID                string `gorm:"primaryKey;size:36"`
	RequestedUsername string `gorm:"size:80;not null"`
	Email             string `gorm:"index;size:120;not null"`
	FullName          string `gorm:"size:150"`
	Rank              string `gorm:"size:100"`
	Reason            string `gorm:"type:text"`
	Status            string `gorm:"index;size:16;not null;default:PENDING"`
	RequestedAt       time.Time
	ReviewedBy        *string `gorm:"size:36"`
	ReviewedAt        *time.Time
}

// Model converts the record to its API form
func (r *RegistrationRequest) Model() models.RegistrationRequest {
	return models.RegistrationRequest{
		ID:                r.ID,
		RequestedUsername: r.RequestedUsername,
		Email:             r.Email,
		FullName:          r.FullName,
		Rank:              r.Rank,
		Reason:            r.Reason,
		Status:            models.RegistrationStatus(r.Status),
		RequestedAt:       r.RequestedAt,
	}
}

// RefreshToken tracks an issued refresh token by its jti
type RefreshToken struct {
	JTI       string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index;size:36;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Revoked   bool      `gorm:"not null;default:false"`
}

// allRecords lists the tables managed by AutoMigrate
func allRecords() []interface{} {
	return []interface{}{
		&User{}, &Device{}, &StatusSample{}, &Alert{},
		&LogEntry{}, &RegistrationRequest{}, &RefreshToken{},
	}
}
