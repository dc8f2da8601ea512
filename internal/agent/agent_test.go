package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitlink/unitlink/internal/config"
	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/realtime"
	"github.com/unitlink/unitlink/internal/session"
	"github.com/unitlink/unitlink/internal/tokenstore"
)

type backend struct {
	mounted chan struct{}
	once    sync.Once
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	b := &backend{mounted: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.LoginResponse{
			Message:      "Login successful",
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			UserRole:     models.RoleOperator,
			Username:     "operator",
			UserID:       "7",
		})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Logged out"}`))
	})
	mux.HandleFunc("/api/devices", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"devices":[{"id":"u-1","name":"Alpha","unit_type":"FIELD_UNIT","status":"ONLINE"}]}`))
	})
	mux.HandleFunc("/api/alerts/unacknowledged", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"alerts":[]}`))
		// Both synchronizers are subscribed once the alerts snapshot is asked for
		b.once.Do(func() { close(b.mounted) })
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		select {
		case <-b.mounted:
		case <-r.Context().Done():
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"unit_status_update","data":{"id":"u-1","status":"OFFLINE"}}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"event":"new_alert","data":{"id":"a-1","device_name":"Alpha","message":"Unit went offline"}}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAgentFollowsSession(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	baseURL := srv.URL + "/api"
	wsURL, err := realtime.WebSocketURL(baseURL)
	require.NoError(t, err)

	store := tokenstore.NewMemoryStore()
	keeper := tokenstore.NewKeeper(store)
	forced := make(chan error, 1)
	gw := newGateway(config.APIConfig{BaseURL: baseURL, Timeout: 5 * time.Second}, keeper, forced)
	a := newAgent(store, keeper, gw, forced,
		realtime.NewChannel(realtime.NewWebSocketTransport(wsURL, keeper.AccessToken)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return a.Session.Snapshot().State == session.StateAnonymous
	}, time.Second, 5*time.Millisecond)
	assert.False(t, a.Channel.IsOpen())

	require.NoError(t, a.Session.Login(ctx, "operator", "secret"))

	require.Eventually(t, func() bool {
		unit, ok := a.Units.Get("u-1")
		return ok && unit.Status == models.UnitStatusOffline
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(a.Alerts.List()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	unit, _ := a.Units.Get("u-1")
	assert.Equal(t, "Alpha", unit.Name)
	assert.True(t, a.Channel.IsOpen())

	a.Session.Logout(ctx)
	require.Eventually(t, func() bool {
		return !a.Channel.IsOpen() && len(a.Units.List()) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, a.Alerts.List())

	cancel()
	<-done
}

func TestAgentRemountsForNewSession(t *testing.T) {
	t.Parallel()

	var snapshots atomic.Int32
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", func(w http.ResponseWriter, r *http.Request) {
		snapshots.Add(1)
		_, _ = w.Write([]byte(`{"devices":[]}`))
	})
	mux.HandleFunc("/api/alerts/unacknowledged", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"alerts":[]}`))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	baseURL := srv.URL + "/api"
	wsURL, err := realtime.WebSocketURL(baseURL)
	require.NoError(t, err)

	ctx := context.Background()
	store := tokenstore.NewMemoryStore()
	keeper := tokenstore.NewKeeper(store)
	forced := make(chan error, 1)
	gw := newGateway(config.APIConfig{BaseURL: baseURL, Timeout: 5 * time.Second}, keeper, forced)
	a := newAgent(store, keeper, gw, forced,
		realtime.NewChannel(realtime.NewWebSocketTransport(wsURL, keeper.AccessToken)))
	defer a.deactivate()

	login := func(refresh string) session.Snapshot {
		keeper.Save(ctx, models.Credential{
			AccessToken:  "access-" + refresh,
			RefreshToken: refresh,
			Role:         models.RoleOperator,
			Username:     "operator",
			UserID:       "7",
		})
		return session.Snapshot{
			State:           session.StateAuthenticated,
			IsAuthenticated: true,
			CurrentUser:     &models.CurrentUser{ID: "7", Username: "operator", Role: models.RoleOperator},
		}
	}

	a.setDesired(login("refresh-1"))
	a.reconcile(ctx)
	assert.Equal(t, int32(1), snapshots.Load())
	assert.True(t, a.Channel.IsOpen())

	// the same session wakes the agent again without a remount
	a.reconcile(ctx)
	assert.Equal(t, int32(1), snapshots.Load())

	// logout and login delivered as one wake-up
	a.setDesired(login("refresh-2"))
	a.reconcile(ctx)
	assert.Equal(t, int32(2), snapshots.Load())
	assert.True(t, a.Channel.IsOpen())

	a.setDesired(session.Snapshot{State: session.StateAnonymous})
	a.reconcile(ctx)
	assert.False(t, a.Channel.IsOpen())
}

func TestNewTransport(t *testing.T) {
	t.Parallel()

	base := func() *config.Config {
		return &config.Config{
			API:      config.APIConfig{BaseURL: "https://unitlink.example/api"},
			Realtime: config.RealtimeConfig{Prefix: "unitlink"},
		}
	}

	cfg := base()
	cfg.Realtime.Transport = "websocket"
	renew := func(context.Context, string) (string, error) { return "renewed", nil }
	tr, err := NewTransport(cfg, func() string { return "" }, renew)
	require.NoError(t, err)
	ws, ok := tr.(*realtime.WebSocketTransport)
	require.True(t, ok)
	assert.Equal(t, "wss://unitlink.example/ws", ws.URL)
	require.NotNil(t, ws.Renew)
	token, err := ws.Renew(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, "renewed", token)

	cfg = base()
	cfg.Realtime.Transport = "nats"
	cfg.NATS.URL = "nats://broker:4222"
	tr, err = NewTransport(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "nats://broker:4222", tr.(*realtime.NATSTransport).URL)

	cfg = base()
	cfg.Realtime.Transport = "mqtt"
	_, err = NewTransport(cfg, nil, nil)
	assert.Error(t, err)

	cfg.MQTT.Broker = "tcp://broker:1883"
	tr, err = NewTransport(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "unitlink", tr.(*realtime.MQTTTransport).Prefix)

	cfg = base()
	cfg.Realtime.Transport = "carrier-pigeon"
	_, err = NewTransport(cfg, nil, nil)
	assert.True(t, err != nil && strings.Contains(err.Error(), "carrier-pigeon"))
}
