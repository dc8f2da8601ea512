package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"http://localhost:5000/api", "ws://localhost:5000/ws"},
		{"https://unitlink.example/api/", "wss://unitlink.example/ws"},
		{"http://10.0.0.5:8080", "ws://10.0.0.5:8080/ws"},
	}
	for _, tt := range tests {
		got, err := WebSocketURL(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := WebSocketURL("ftp://host/api")
	assert.Error(t, err)
}

func TestWebSocketTransportDeliversAndReconnects(t *testing.T) {
	t.Parallel()

	var connections atomic.Int32
	var authHeader atomic.Value
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader.Store(r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := connections.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteJSON(map[string]interface{}{
			"event": "unit_status_update",
			"data":  map[string]interface{}{"id": "u1", "connection": n},
		})
		if n == 1 {
			// drop the first connection to force a reconnect
			return
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	tr := NewWebSocketTransport("ws"+strings.TrimPrefix(srv.URL, "http"), func() string { return "token-1" })
	tr.NewBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, func(ev Event) { events <- ev }) }()

	for i := 1; i <= 2; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, "unit_status_update", ev.Name)
			assert.Contains(t, string(ev.Data), `"id":"u1"`)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
	assert.Equal(t, int32(2), connections.Load())
	assert.Equal(t, "Bearer token-1", authHeader.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not stop")
	}
}

func TestWebSocketTransportRenewsRejectedToken(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-2" {
			http.Error(w, `{"message":"Token is invalid or has expired"}`, http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]interface{}{"event": "new_alert", "data": map[string]string{"id": "a-1"}})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	var current atomic.Value
	current.Store("token-1")
	var renewals atomic.Int32

	tr := NewWebSocketTransport("ws"+strings.TrimPrefix(srv.URL, "http"), func() string { return current.Load().(string) })
	tr.NewBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) }
	tr.Renew = func(_ context.Context, stale string) (string, error) {
		renewals.Add(1)
		assert.Equal(t, "token-1", stale)
		current.Store("token-2")
		return "token-2", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan Event, 1)
	go func() { _ = tr.Run(ctx, func(ev Event) { events <- ev }) }()

	select {
	case ev := <-events:
		assert.Equal(t, "new_alert", ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after renewing the token")
	}
	assert.Equal(t, int32(1), renewals.Load())
}

func TestWebSocketTransportReportsRenewFailure(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	renewErr := errors.New("session refresh failed")
	tr := NewWebSocketTransport("ws"+strings.TrimPrefix(srv.URL, "http"), func() string { return "token-1" })
	tr.NewBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
	}
	tr.Renew = func(context.Context, string) (string, error) { return "", renewErr }

	err := tr.Run(context.Background(), func(Event) {})
	assert.ErrorIs(t, err, ErrHandshakeRejected)
	assert.ErrorIs(t, err, renewErr)
	assert.Equal(t, int32(3), dials.Load())
}
