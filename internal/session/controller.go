package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/tokenstore"
)

// State is the lifecycle state of a session
type State string

const (
	StateUninitialized State = "uninitialized"
	StateChecking      State = "checking"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// RouteLogin is where the user is sent once the session ends
const RouteLogin = "/login"

// Session errors
var (
	ErrIncompleteLogin  = errors.New("login response is missing session fields")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Snapshot is a read-only view of the session
type Snapshot struct {
	State           State               `json:"state"`
	IsAuthenticated bool                `json:"is_authenticated"`
	CurrentUser     *models.CurrentUser `json:"current_user"`
	IsLoading       bool                `json:"is_loading"`
}

// AuthClient is the part of the backend the controller talks to
type AuthClient interface {
	Login(ctx context.Context, username, password string) (*models.LoginResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	UpdateUsername(ctx context.Context, username string) (string, error)
}

// Navigator moves the consumer to another route
type Navigator func(route string)

// Option configures a Controller
type Option func(*Controller)

// WithNavigator sets the navigation callback used when the session ends
func WithNavigator(n Navigator) Option {
	return func(c *Controller) { c.navigate = n }
}

// WithClock overrides the time source used for the local expiry check
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the credential and the login/logout transitions
type Controller struct {
	keeper   *tokenstore.Keeper
	auth     AuthClient
	navigate Navigator
	now      func() time.Time

	// ops serializes state-changing operations
	ops sync.Mutex

	mu        sync.RWMutex
	view      Snapshot
	listeners map[int]func(Snapshot)
	nextID    int
}

// NewController creates a controller in the uninitialized state
func NewController(keeper *tokenstore.Keeper, auth AuthClient, opts ...Option) *Controller {
	c := &Controller{
		keeper:    keeper,
		auth:      auth,
		navigate:  func(string) {},
		now:       time.Now,
		view:      Snapshot{State: StateUninitialized, IsLoading: true},
		listeners: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current session view
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyView()
}

// OnChange registers fn to receive every new snapshot.
// The returned function unregisters it.
func (c *Controller) OnChange(fn func(Snapshot)) (dispose func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Bootstrap restores a persisted session without contacting the server
func (c *Controller) Bootstrap(ctx context.Context) Snapshot {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.update(func(v *Snapshot) {
		v.State = StateChecking
		v.IsLoading = true
	})

	cred := c.keeper.Load(ctx)
	switch {
	case cred == nil:
		log.Info().Msg("No stored session")
	case !cred.Complete():
		log.Warn().Msg("Stored session is incomplete, discarding")
		c.keeper.Clear(ctx)
		cred = nil
	case tokenExpired(cred.RefreshToken, c.now()):
		log.Info().Str("username", cred.Username).Msg("Stored session has expired, discarding")
		c.keeper.Clear(ctx)
		cred = nil
	default:
		log.Info().Str("username", cred.Username).Str("role", cred.Role).Msg("Restored session")
	}

	return c.update(func(v *Snapshot) {
		setCredential(v, cred)
		v.IsLoading = false
	})
}

// Login authenticates against the server and persists the credential.
// On failure the session is left as it was.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.update(func(v *Snapshot) { v.IsLoading = true })
	defer c.update(func(v *Snapshot) { v.IsLoading = false })

	resp, err := c.auth.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	cred := models.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Role:         resp.UserRole,
		Username:     resp.Username,
		UserID:       resp.UserID,
	}
	if !cred.Complete() {
		return ErrIncompleteLogin
	}

	c.keeper.Save(ctx, cred)
	c.update(func(v *Snapshot) { setCredential(v, &cred) })

	log.Info().Str("username", cred.Username).Str("role", cred.Role).Msg("Logged in")
	return nil
}

// Logout revokes the refresh token on the server when possible, then ends
// the session locally whatever the outcome of that call.
func (c *Controller) Logout(ctx context.Context) {
	c.ops.Lock()
	defer c.ops.Unlock()

	if refreshToken := c.keeper.RefreshToken(); refreshToken != "" {
		if err := c.auth.Logout(ctx, refreshToken); err != nil {
			log.Warn().Err(err).Msg("Server logout failed")
		}
	}

	c.end(ctx)
	log.Info().Msg("Logged out")
}

// OnForcedLogout ends the session after the credential was rejected.
// The server is not contacted.
func (c *Controller) OnForcedLogout(ctx context.Context) {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.end(ctx)
	log.Warn().Msg("Session ended by failed token refresh")
}

// Watch performs a forced logout for every value received on signals
// until ctx is done.
func (c *Controller) Watch(ctx context.Context, signals <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-signals:
			if !ok {
				return
			}
			log.Debug().Err(err).Msg("Forced logout signal")
			c.OnForcedLogout(ctx)
		}
	}
}

// UpdateProfile changes identity fields of the current credential.
// Token fields cannot be changed this way.
func (c *Controller) UpdateProfile(ctx context.Context, fields map[string]string) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	return c.updateProfile(ctx, fields)
}

// ChangeUsername renames the user on the server and then locally
func (c *Controller) ChangeUsername(ctx context.Context, username string) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if c.keeper.Credential() == nil {
		return ErrNotAuthenticated
	}

	stored, err := c.auth.UpdateUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("update username: %w", err)
	}
	return c.updateProfile(ctx, map[string]string{models.FieldUsername: stored})
}

func (c *Controller) updateProfile(ctx context.Context, fields map[string]string) error {
	if c.keeper.Credential() == nil {
		return ErrNotAuthenticated
	}

	for name := range fields {
		if models.IsTokenField(name) {
			return fmt.Errorf("%w: %s", tokenstore.ErrTokenField, name)
		}
		if !models.IsCredentialField(name) {
			return fmt.Errorf("%w: %s", tokenstore.ErrUnknownField, name)
		}
	}

	for name, value := range fields {
		if err := c.keeper.UpdateField(ctx, name, value); err != nil {
			return err
		}
	}

	cred := c.keeper.Credential()
	c.update(func(v *Snapshot) { setCredential(v, cred) })
	return nil
}

func (c *Controller) end(ctx context.Context) {
	c.keeper.Clear(ctx)
	c.update(func(v *Snapshot) {
		setCredential(v, nil)
		v.IsLoading = false
	})
	c.navigate(RouteLogin)
}

// update applies fn to the view and notifies listeners outside the lock
func (c *Controller) update(fn func(*Snapshot)) Snapshot {
	c.mu.Lock()
	fn(&c.view)
	snap := c.copyView()
	listeners := make([]func(Snapshot), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return snap
}

func (c *Controller) copyView() Snapshot {
	v := c.view
	if v.CurrentUser != nil {
		u := *v.CurrentUser
		v.CurrentUser = &u
	}
	return v
}

func setCredential(v *Snapshot, cred *models.Credential) {
	if cred == nil {
		v.State = StateAnonymous
		v.IsAuthenticated = false
		v.CurrentUser = nil
		return
	}
	v.State = StateAuthenticated
	v.IsAuthenticated = true
	v.CurrentUser = &models.CurrentUser{
		ID:       cred.UserID,
		Username: cred.Username,
		Role:     cred.Role,
	}
}
