package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/unitlink/unitlink/internal/config"
	"github.com/unitlink/unitlink/internal/models"
)

// Common errors
var (
	ErrUnknownField = errors.New("unknown credential field")
	ErrTokenField   = errors.New("token fields cannot be updated individually")
)

// Store persists the client credential as a set of key/value entries
type Store interface {
	// Save writes every credential field as one unit
	Save(ctx context.Context, cred models.Credential) error
	// Load returns the stored credential, or nil if nothing is stored
	Load(ctx context.Context) (*models.Credential, error)
	// Clear removes all fields. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
	// UpdateField replaces a single field and leaves the others untouched
	UpdateField(ctx context.Context, name, value string) error
	Close() error
}

// Open creates the store selected by cfg
func Open(cfg config.TokenStoreConfig) (Store, error) {
	switch cfg.Driver {
	case "file":
		return NewFileStore(cfg.Path), nil
	case "sqlite", "postgres":
		return NewSQLStore(cfg.Driver, cfg.DSN)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown token store driver: %s", cfg.Driver)
	}
}

func checkField(name string) error {
	if !models.IsCredentialField(name) {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return nil
}

// fromFields returns nil when no field is set
func fromFields(f map[string]string) *models.Credential {
	empty := true
	for _, v := range f {
		if v != "" {
			empty = false
			break
		}
	}
	if empty {
		return nil
	}
	cred := models.CredentialFromFields(f)
	return &cred
}
