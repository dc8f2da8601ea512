// Package agent wires the client core together and keeps the live view in
// step with the session: realtime and the synchronizers run while a user
// is signed in and are torn down when the session ends.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/api"
	"github.com/unitlink/unitlink/internal/config"
	"github.com/unitlink/unitlink/internal/gateway"
	"github.com/unitlink/unitlink/internal/livestate"
	"github.com/unitlink/unitlink/internal/realtime"
	"github.com/unitlink/unitlink/internal/session"
	"github.com/unitlink/unitlink/internal/tokenstore"
)

// Agent owns the client core components
type Agent struct {
	store   tokenstore.Store
	keeper  *tokenstore.Keeper
	gateway *gateway.Gateway
	forced  chan error

	Session *session.Controller
	Channel *realtime.Channel
	Units   *livestate.Units
	Alerts  *livestate.Alerts
	Roster  *livestate.Roster
	Logs    *api.LogsAPI
	Auth    *api.AuthAPI
	Admin   *api.AdminAPI
	Devices *api.UnitsAPI

	// desired and active identify sessions as user/refresh token, "" for none
	mu      sync.Mutex
	desired string
	wake    chan struct{}
	active  string
}

// New builds an agent from cfg
func New(cfg *config.Config) (*Agent, error) {
	store, err := tokenstore.Open(cfg.TokenStore)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	keeper := tokenstore.NewKeeper(store)
	forced := make(chan error, 1)
	gw := newGateway(cfg.API, keeper, forced)

	transport, err := NewTransport(cfg, keeper.AccessToken, gw.Refresh)
	if err != nil {
		store.Close()
		return nil, err
	}

	return newAgent(store, keeper, gw, forced, realtime.NewChannel(transport)), nil
}

func newGateway(apiCfg config.APIConfig, keeper *tokenstore.Keeper, forced chan<- error) *gateway.Gateway {
	return gateway.New(apiCfg.BaseURL, keeper,
		gateway.WithTimeout(apiCfg.Timeout),
		gateway.WithForcedLogout(forced),
	)
}

func newAgent(store tokenstore.Store, keeper *tokenstore.Keeper, gw *gateway.Gateway, forced chan error, ch *realtime.Channel) *Agent {
	auth := api.NewAuthAPI(gw)
	admin := api.NewAdminAPI(gw)
	devices := api.NewUnitsAPI(gw)

	return &Agent{
		store:   store,
		keeper:  keeper,
		gateway: gw,
		forced:  forced,
		Session: session.NewController(keeper, auth),
		Channel: ch,
		Units:   livestate.NewUnits(devices, ch),
		Alerts:  livestate.NewAlerts(api.NewAlertsAPI(gw), ch),
		Roster:  livestate.NewRoster(admin),
		Logs:    api.NewLogsAPI(gw),
		Auth:    auth,
		Admin:   admin,
		Devices: devices,
		wake:    make(chan struct{}, 1),
	}
}

// Run restores the session and keeps realtime and the synchronizers in
// step with it until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	dispose := a.Session.OnChange(func(s session.Snapshot) {
		a.setDesired(s)

		select {
		case a.wake <- struct{}{}:
		default:
		}
	})
	defer dispose()

	go a.Session.Watch(ctx, a.forced)

	snap := a.Session.Bootstrap(ctx)
	log.Info().Str("state", string(snap.State)).Msg("Session restored")

	a.setDesired(snap)
	a.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			a.deactivate()
			return nil
		case <-a.wake:
			a.reconcile(ctx)
		}
	}
}

// Close releases the token store
func (a *Agent) Close() error {
	return a.store.Close()
}

// setDesired records which session the live view should follow. A logout
// followed by a new login may arrive as a single wake-up, so sessions are
// told apart by user and refresh token rather than by state alone.
func (a *Agent) setDesired(s session.Snapshot) {
	key := ""
	if s.State == session.StateAuthenticated && s.CurrentUser != nil {
		key = s.CurrentUser.ID + "/" + a.keeper.RefreshToken()
	}

	a.mu.Lock()
	a.desired = key
	a.mu.Unlock()
}

func (a *Agent) reconcile(ctx context.Context) {
	a.mu.Lock()
	want := a.desired
	a.mu.Unlock()

	if want == a.active {
		return
	}
	a.deactivate()
	if want != "" {
		a.activate(ctx, want)
	}
}

func (a *Agent) activate(ctx context.Context, key string) {
	a.active = key
	log.Info().Msg("Session authenticated, starting live view")

	if err := a.Channel.Open(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to open realtime channel")
	}
	if err := a.Units.Mount(ctx); err != nil {
		log.Warn().Err(err).Msg("Units snapshot unavailable")
	}
	if err := a.Alerts.Mount(ctx); err != nil {
		log.Warn().Err(err).Msg("Alerts snapshot unavailable")
	}
}

func (a *Agent) deactivate() {
	if a.active == "" {
		return
	}
	a.active = ""
	log.Info().Msg("Session ended, stopping live view")

	a.Units.Unmount()
	a.Alerts.Unmount()
	a.Channel.Close()
}
