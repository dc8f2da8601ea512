package livestate

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/models"
)

// UsersSource is the admin user management backend
type UsersSource interface {
	Users(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id string, up models.UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Roster is the admin view of user accounts. Edits are applied locally
// before the server confirms them and the list is refetched when the
// server rejects one.
type Roster struct {
	source UsersSource

	mu      sync.RWMutex
	users   []models.User
	loading bool
	err     error
}

// NewRoster creates an empty roster
func NewRoster(source UsersSource) *Roster {
	return &Roster{source: source}
}

// Load fetches all users
func (r *Roster) Load(ctx context.Context) error {
	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()

	users, err := r.source.Users(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.loading = false
	r.err = err
	if err != nil {
		log.Error().Err(err).Msg("Failed to load users")
		return err
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	r.users = users
	return nil
}

// Update changes role or active flag of a user
func (r *Roster) Update(ctx context.Context, id string, up models.UserUpdate) error {
	r.mu.Lock()
	for i, u := range r.users {
		if u.ID == id {
			r.users[i] = up.Apply(u)
			break
		}
	}
	r.mu.Unlock()

	updated, err := r.source.UpdateUser(ctx, id, up)
	if err != nil {
		r.revert(ctx, err)
		return err
	}

	if updated != nil {
		r.mu.Lock()
		for i, u := range r.users {
			if u.ID == id {
				r.users[i] = *updated
				break
			}
		}
		r.mu.Unlock()
	}
	return nil
}

// Delete removes a user
func (r *Roster) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	for i, u := range r.users {
		if u.ID == id {
			r.users = append(r.users[:i:i], r.users[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if err := r.source.DeleteUser(ctx, id); err != nil {
		r.revert(ctx, err)
		return err
	}
	return nil
}

func (r *Roster) revert(ctx context.Context, cause error) {
	log.Warn().Err(cause).Msg("User change rejected, reloading users")
	if err := r.Load(ctx); err != nil {
		// Keep the cause for callers; the load error is already logged
		r.mu.Lock()
		r.err = cause
		r.mu.Unlock()
	}
}

// List returns the users ordered by username
func (r *Roster) List() []models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.User, len(r.users))
	copy(out, r.users)
	return out
}

// Loading reports whether a load is in flight
func (r *Roster) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Err returns the last error
func (r *Roster) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}
