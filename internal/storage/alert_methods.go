package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/unitlink/unitlink/internal/models"
)

// CreateAlert creates a new alert
func (s *GormStore) CreateAlert(ctx context.Context, alert *Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	if alert.Severity == "" {
		alert.Severity = string(models.AlertSeverityWarning)
	}
	return translate(s.getDB(ctx).Create(alert).Error)
}

// GetAlert gets an alert by ID
func (s *GormStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	var alert Alert
	if err := s.getDB(ctx).Preload("Device").Where("id = ?", id).First(&alert).Error; err != nil {
		return nil, translate(err)
	}
	return &alert, nil
}

// ListUnacknowledgedAlerts lists open alerts, newest first
func (s *GormStore) ListUnacknowledgedAlerts(ctx context.Context) ([]*Alert, error) {
	var alerts []*Alert
	err := s.getDB(ctx).
		Preload("Device").
		Where("acknowledged = ?", false).
		Order("timestamp DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, translate(err)
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert as handled by userID. Acknowledging an
// acknowledged alert leaves it unchanged.
func (s *GormStore) AcknowledgeAlert(ctx context.Context, id, userID string, at time.Time) (*Alert, error) {
	err := s.getDB(ctx).Model(&Alert{}).
		Where("id = ? AND acknowledged = ?", id, false).
		Updates(map[string]interface{}{
			"acknowledged":    true,
			"acknowledged_at": at,
			"acknowledged_by": userID,
		}).Error
	if err != nil {
		return nil, translate(err)
	}
	return s.GetAlert(ctx, id)
}
