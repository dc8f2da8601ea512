package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/unitlink/unitlink/internal/models"
)

// CreateRegistrationRequest stores a new pending request
func (s *GormStore) CreateRegistrationRequest(ctx context.Context, req *RegistrationRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = string(models.RegistrationPending)
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	return translate(s.getDB(ctx).Create(req).Error)
}

// GetRegistrationRequest gets a request by ID
func (s *GormStore) GetRegistrationRequest(ctx context.Context, id string) (*RegistrationRequest, error) {
	var req RegistrationRequest
	if err := s.getDB(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

// UpdateRegistrationRequest saves the review state of a request
func (s *GormStore) UpdateRegistrationRequest(ctx context.Context, req *RegistrationRequest) error {
	result := s.getDB(ctx).Model(&RegistrationRequest{}).Where("id = ?", req.ID).Updates(map[string]interface{}{
		"status":      req.Status,
		"reviewed_by": req.ReviewedBy,
		"reviewed_at": req.ReviewedAt,
	})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingRegistrationRequests lists pending requests, oldest first
func (s *GormStore) ListPendingRegistrationRequests(ctx context.Context) ([]*RegistrationRequest, error) {
	var reqs []*RegistrationRequest
	err := s.getDB(ctx).
		Where("status = ?", string(models.RegistrationPending)).
		Order("requested_at ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, translate(err)
	}
	return reqs, nil
}

// PendingRequestExists reports whether a pending request holds username or email
func (s *GormStore) PendingRequestExists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := s.getDB(ctx).Model(&RegistrationRequest{}).
		Where("(requested_username = ? OR email = ?) AND status = ?", username, email, string(models.RegistrationPending)).
		Count(&count).Error
	return count > 0, translate(err)
}
