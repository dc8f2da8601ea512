package tokenstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/models"
)

// Keeper holds the current credential in memory in front of a Store.
// Storage failures are logged and never surface to callers; a credential
// that cannot be read is treated as absent.
type Keeper struct {
	mu    sync.RWMutex
	store Store
	cred  *models.Credential
}

// NewKeeper creates a keeper. Nothing is read until Load is called.
func NewKeeper(store Store) *Keeper {
	return &Keeper{store: store}
}

// Load reads the persisted credential and makes it current
func (k *Keeper) Load(ctx context.Context) *models.Credential {
	cred, err := k.store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load stored credential")
		cred = nil
	}

	k.mu.Lock()
	k.cred = cred
	k.mu.Unlock()

	return k.Credential()
}

// Credential returns a copy of the current credential, or nil
func (k *Keeper) Credential() *models.Credential {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.cred == nil {
		return nil
	}
	c := *k.cred
	return &c
}

// Save replaces the current credential and persists all of its fields
func (k *Keeper) Save(ctx context.Context, cred models.Credential) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.cred = &cred
	if err := k.store.Save(ctx, cred); err != nil {
		log.Warn().Err(err).Msg("Failed to persist credential")
	}
}

// Clear drops the current credential and removes it from storage
func (k *Keeper) Clear(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.cred = nil
	if err := k.store.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to clear stored credential")
	}
}

// UpdateField changes one identity field. Token fields are rejected.
func (k *Keeper) UpdateField(ctx context.Context, name, value string) error {
	if models.IsTokenField(name) {
		return fmt.Errorf("%w: %s", ErrTokenField, name)
	}
	if err := checkField(name); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cred != nil {
		fields := k.cred.Fields()
		fields[name] = value
		cred := models.CredentialFromFields(fields)
		k.cred = &cred
	}
	if err := k.store.UpdateField(ctx, name, value); err != nil {
		log.Warn().Err(err).Str("field", name).Msg("Failed to persist credential field")
	}
	return nil
}

// AccessToken returns the current access token
func (k *Keeper) AccessToken() string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.cred == nil {
		return ""
	}
	return k.cred.AccessToken
}

// RefreshToken returns the current refresh token
func (k *Keeper) RefreshToken() string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.cred == nil {
		return ""
	}
	return k.cred.RefreshToken
}

// RotateAccessToken stores a newly minted access token. It is applied only
// if refreshToken is still the current refresh token, so a refresh that
// completes after a logout or a newer login changes nothing.
func (k *Keeper) RotateAccessToken(ctx context.Context, refreshToken, accessToken string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cred == nil || k.cred.RefreshToken != refreshToken {
		return false
	}

	cred := *k.cred
	cred.AccessToken = accessToken
	k.cred = &cred

	if err := k.store.Save(ctx, cred); err != nil {
		log.Warn().Err(err).Msg("Failed to persist rotated access token")
	}
	return true
}
