package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/unitlink/unitlink/internal/models"
)

// CreateDevice creates a new device
func (s *GormStore) CreateDevice(ctx context.Context, device *Device) error {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	if device.Status == "" {
		device.Status = string(models.UnitStatusUnknown)
	}
	return translate(s.getDB(ctx).Create(device).Error)
}

// GetDevice gets a device by ID
func (s *GormStore) GetDevice(ctx context.Context, id string) (*Device, error) {
	var device Device
	if err := s.getDB(ctx).Where("id = ?", id).First(&device).Error; err != nil {
		return nil, translate(err)
	}
	return &device, nil
}

// GetDeviceByName gets a device by its unique name
func (s *GormStore) GetDeviceByName(ctx context.Context, name string) (*Device, error) {
	var device Device
	if err := s.getDB(ctx).Where("name = ?", name).First(&device).Error; err != nil {
		return nil, translate(err)
	}
	return &device, nil
}

// UpdateDevice updates a device
func (s *GormStore) UpdateDevice(ctx context.Context, device *Device) error {
	result := s.getDB(ctx).Model(&Device{}).Where("id = ?", device.ID).Updates(map[string]interface{}{
		"name":        device.Name,
		"description": device.Description,
		"latitude":    device.Latitude,
		"longitude":   device.Longitude,
		"unit_type":   device.UnitType,
		"status":      device.Status,
		"last_seen":   device.LastSeen,
	})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDevice deletes a device with its history and alerts. Log entries
// keep the event but lose the link.
func (s *GormStore) DeleteDevice(ctx context.Context, id string) error {
	db := s.getDB(ctx)
	if err := db.Where("device_id = ?", id).Delete(&StatusSample{}).Error; err != nil {
		return translate(err)
	}
	if err := db.Where("device_id = ?", id).Delete(&Alert{}).Error; err != nil {
		return translate(err)
	}
	if err := db.Model(&LogEntry{}).Where("device_id = ?", id).Update("device_id", nil).Error; err != nil {
		return translate(err)
	}

	result := db.Where("id = ?", id).Delete(&Device{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDevices lists all devices ordered by name
func (s *GormStore) ListDevices(ctx context.Context) ([]*Device, error) {
	var devices []*Device
	if err := s.getDB(ctx).Order("name").Find(&devices).Error; err != nil {
		return nil, translate(err)
	}
	return devices, nil
}

// ListDevicesSeenBefore lists devices not marked offline whose last report
// is older than before
func (s *GormStore) ListDevicesSeenBefore(ctx context.Context, before time.Time) ([]*Device, error) {
	var devices []*Device
	err := s.getDB(ctx).
		Where("last_seen IS NOT NULL AND last_seen < ? AND status <> ?", before, string(models.UnitStatusOffline)).
		Order("name").
		Find(&devices).Error
	if err != nil {
		return nil, translate(err)
	}
	return devices, nil
}

// AddStatusSample stores a link quality measurement
func (s *GormStore) AddStatusSample(ctx context.Context, sample *StatusSample) error {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	return translate(s.getDB(ctx).Create(sample).Error)
}

// LatestStatusSamples returns the newest sample of every device that has one
func (s *GormStore) LatestStatusSamples(ctx context.Context) (map[string]*StatusSample, error) {
	latest := s.getDB(ctx).Model(&StatusSample{}).
		Select("device_id, MAX(id) AS id").
		Group("device_id")

	var samples []*StatusSample
	err := s.getDB(ctx).
		Joins("JOIN (?) AS latest ON latest.id = device_status_history.id", latest).
		Find(&samples).Error
	if err != nil {
		return nil, translate(err)
	}

	out := make(map[string]*StatusSample, len(samples))
	for _, sample := range samples {
		out[sample.DeviceID] = sample
	}
	return out, nil
}

// ListStatusSamples returns up to limit samples of a device, newest first
func (s *GormStore) ListStatusSamples(ctx context.Context, deviceID string, limit int) ([]*StatusSample, error) {
	var samples []*StatusSample
	err := s.getDB(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&samples).Error
	if err != nil {
		return nil, translate(err)
	}
	return samples, nil
}
