package devserver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/config"
	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/storage"
	"github.com/unitlink/unitlink/pkg/crypto"
)

// EnsureAdmin creates the configured administrator when no active one
// exists. Without a configured password a random one is generated and logged.
func EnsureAdmin(ctx context.Context, store storage.Store, cfg config.DevServerConfig) error {
	count, err := store.CountActiveAdmins(ctx)
	if err != nil {
		return fmt.Errorf("count administrators: %w", err)
	}
	if count > 0 {
		return nil
	}

	password := cfg.AdminPassword
	generated := password == ""
	if generated {
		if password, err = crypto.GenerateRandomString(18); err != nil {
			return fmt.Errorf("generate admin password: %w", err)
		}
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := &storage.User{
		Username:     cfg.AdminUsername,
		Email:        cfg.AdminUsername + "@unitlink.local",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := store.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	event := log.Info().Str("username", admin.Username)
	if generated {
		event = log.Warn().Str("username", admin.Username).Str("password", password)
	}
	event.Msg("Created initial administrator")
	return nil
}
