package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/unitlink/unitlink/internal/models"
)

// CreateUser creates a new user
func (s *GormStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = models.RoleOperator
	}
	// Select("*") writes is_active=false instead of the column default
	return translate(s.getDB(ctx).Select("*").Create(user).Error)
}

// GetUser gets a user by ID
func (s *GormStore) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := s.getDB(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByLogin gets a user by username or email
func (s *GormStore) GetUserByLogin(ctx context.Context, login string) (*User, error) {
	var user User
	err := s.getDB(ctx).
		Where("username = ? OR email = ?", login, login).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UserExists reports whether a user holds username or email
func (s *GormStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := s.getDB(ctx).Model(&User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	return count > 0, translate(err)
}

// UpdateUser updates a user
func (s *GormStore) UpdateUser(ctx context.Context, user *User) error {
	result := s.getDB(ctx).Model(&User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"username":      user.Username,
		"email":         user.Email,
		"full_name":     user.FullName,
		"password_hash": user.PasswordHash,
		"role":          user.Role,
		"is_active":     user.IsActive,
		"last_login_at": user.LastLoginAt,
	})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser deletes a user. Log entries keep the event but lose the link.
func (s *GormStore) DeleteUser(ctx context.Context, id string) error {
	db := s.getDB(ctx)
	if err := db.Model(&LogEntry{}).Where("user_id = ?", id).Update("user_id", nil).Error; err != nil {
		return translate(err)
	}
	if err := db.Where("user_id = ?", id).Delete(&RefreshToken{}).Error; err != nil {
		return translate(err)
	}

	result := db.Where("id = ?", id).Delete(&User{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers lists all users ordered by username
func (s *GormStore) ListUsers(ctx context.Context) ([]*User, error) {
	var users []*User
	if err := s.getDB(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

// CountActiveAdmins counts active administrator accounts
func (s *GormStore) CountActiveAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := s.getDB(ctx).Model(&User{}).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Count(&count).Error
	return count, translate(err)
}
