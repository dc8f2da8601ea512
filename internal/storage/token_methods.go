package storage

import (
	"context"
)

// SaveRefreshToken records an issued refresh token
func (s *GormStore) SaveRefreshToken(ctx context.Context, token *RefreshToken) error {
	return translate(s.getDB(ctx).Create(token).Error)
}

// GetRefreshToken gets a refresh token record by jti
func (s *GormStore) GetRefreshToken(ctx context.Context, jti string) (*RefreshToken, error) {
	var token RefreshToken
	if err := s.getDB(ctx).Where("jti = ?", jti).First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// RevokeRefreshToken marks a refresh token as revoked
func (s *GormStore) RevokeRefreshToken(ctx context.Context, jti string) error {
	result := s.getDB(ctx).Model(&RefreshToken{}).Where("jti = ?", jti).Update("revoked", true)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
