package livestate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitlink/unitlink/internal/models"
)

type fakeUsers struct {
	mu        sync.Mutex
	users     []models.User
	updateErr error
	deleteErr error
	// seen records the roster state observed while the server call runs
	seen func()
}

func (f *fakeUsers) Users(context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.User, len(f.users))
	copy(out, f.users)
	return out, nil
}

func (f *fakeUsers) UpdateUser(_ context.Context, id string, up models.UserUpdate) (*models.User, error) {
	if f.seen != nil {
		f.seen()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i, u := range f.users {
		if u.ID == id {
			f.users[i] = up.Apply(u)
			out := f.users[i]
			return &out, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeUsers) DeleteUser(_ context.Context, id string) error {
	if f.seen != nil {
		f.seen()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteErr
}

func rosterUsers() []models.User {
	return []models.User{
		{ID: "2", Username: "operator", Role: models.RoleOperator, IsActive: true},
		{ID: "1", Username: "admin", Role: models.RoleAdmin, IsActive: true},
	}
}

func TestRosterLoadSortsByUsername(t *testing.T) {
	t.Parallel()

	r := NewRoster(&fakeUsers{users: rosterUsers()})
	require.NoError(t, r.Load(context.Background()))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "admin", list[0].Username)
	assert.False(t, r.Loading())
}

func TestRosterUpdateIsOptimistic(t *testing.T) {
	t.Parallel()

	src := &fakeUsers{users: rosterUsers()}
	r := NewRoster(src)
	require.NoError(t, r.Load(context.Background()))

	var during models.User
	src.seen = func() { during = r.List()[1] }

	inactive := false
	require.NoError(t, r.Update(context.Background(), "2", models.UserUpdate{IsActive: &inactive}))

	assert.False(t, during.IsActive, "change is visible before the server answers")
	assert.False(t, r.List()[1].IsActive)
}

func TestRosterRejectedChangeIsReverted(t *testing.T) {
	t.Parallel()

	src := &fakeUsers{
		users:     rosterUsers(),
		updateErr: errors.New("forbidden"),
		deleteErr: errors.New("forbidden"),
	}
	r := NewRoster(src)
	require.NoError(t, r.Load(context.Background()))

	role := models.RoleAdmin
	require.Error(t, r.Update(context.Background(), "2", models.UserUpdate{Role: &role}))
	assert.Equal(t, models.RoleOperator, r.List()[1].Role)

	var during int
	src.seen = func() { during = len(r.List()) }
	require.Error(t, r.Delete(context.Background(), "2"))
	assert.Equal(t, 1, during)
	assert.Len(t, r.List(), 2)
}
