package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// TokenFunc returns the bearer token to present on connect
type TokenFunc func() string

// RenewFunc exchanges a token the server rejected for a current one
type RenewFunc func(ctx context.Context, stale string) (string, error)

// ErrHandshakeRejected means the server refused the connect credentials
var ErrHandshakeRejected = errors.New("realtime handshake rejected")

// WebSocketTransport reads {"event": ..., "data": ...} frames from the
// backend stream endpoint.
type WebSocketTransport struct {
	URL    string
	Token  TokenFunc
	Dialer *websocket.Dialer
	// Renew is called when the handshake is rejected with 401. The next
	// dial presents the current token again.
	Renew RenewFunc
	// NewBackOff builds the reconnect policy for each Run
	NewBackOff func() backoff.BackOff
}

// NewWebSocketTransport creates a transport for the stream at wsURL
func NewWebSocketTransport(wsURL string, token TokenFunc) *WebSocketTransport {
	return &WebSocketTransport{
		URL:    wsURL,
		Token:  token,
		Dialer: websocket.DefaultDialer,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run implements Transport
func (t *WebSocketTransport) Run(ctx context.Context, deliver func(Event)) error {
	b := backoff.WithContext(t.NewBackOff(), ctx)

	for {
		token := t.token()
		connected, err := t.session(ctx, token, deliver)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}

		if errors.Is(err, ErrHandshakeRejected) && t.Renew != nil {
			if _, renewErr := t.Renew(ctx, token); renewErr != nil {
				err = fmt.Errorf("%w: %w", err, renewErr)
			} else {
				log.Debug().Str("url", t.URL).Msg("Realtime token renewed")
			}
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("websocket reconnect gave up: %w", err)
		}
		log.Warn().Err(err).Dur("retry_in", wait).Str("url", t.URL).Msg("Realtime connection lost")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *WebSocketTransport) token() string {
	if t.Token == nil {
		return ""
	}
	return t.Token()
}

// session runs one connection until it fails
func (t *WebSocketTransport) session(ctx context.Context, token string, deliver func(Event)) (bool, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := t.Dialer.DialContext(ctx, t.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, fmt.Errorf("dial %s: %w", t.URL, ErrHandshakeRejected)
		}
		if resp != nil {
			return false, fmt.Errorf("dial %s: %w (status %d)", t.URL, err, resp.StatusCode)
		}
		return false, fmt.Errorf("dial %s: %w", t.URL, err)
	}
	defer conn.Close()

	log.Info().Str("url", t.URL).Msg("Realtime connection established")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
			log.Warn().Int("size", len(data)).Msg("Dropping malformed realtime frame")
			continue
		}
		deliver(ev)
	}
}

// WebSocketURL derives the stream endpoint from the REST base URL,
// e.g. http://host:5000/api becomes ws://host:5000/ws
func WebSocketURL(apiBaseURL string) (string, error) {
	u, err := url.Parse(apiBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}

	path := strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/api")
	u.Path = path + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
