package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/models"
)

// Backend paths of the auth endpoints, relative to the base URL
const (
	LoginPath   = "/auth/login"
	RefreshPath = "/auth/refresh"
	LogoutPath  = "/auth/logout"
)

// TokenSource gives the gateway access to the current credential
type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	// RotateAccessToken stores accessToken if refreshToken is still current
	RotateAccessToken(ctx context.Context, refreshToken, accessToken string) bool
}

// Request describes one backend call
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Header http.Header
}

type refreshOutcome struct {
	token string
	err   error
}

// Gateway performs authenticated backend calls. A 401 triggers at most one
// refresh at a time; calls failing while it is in flight wait for its
// outcome and are retried once.
type Gateway struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	forced  chan<- error

	refreshTimeout time.Duration

	mu            sync.Mutex
	refreshing    bool
	waiters       []chan refreshOutcome
	failedRefresh string
}

// Option configures a Gateway
type Option func(*Gateway)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithTimeout sets the per-request timeout of the default client
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.client = &http.Client{Timeout: d}
		g.refreshTimeout = d
	}
}

// WithForcedLogout sets the channel that receives a value whenever a
// refresh fails and the session has to end. Sends never block.
func WithForcedLogout(ch chan<- error) Option {
	return func(g *Gateway) { g.forced = ch }
}

// New creates a gateway for the backend at baseURL
func New(baseURL string, tokens TokenSource, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         &http.Client{Timeout: 15 * time.Second},
		tokens:         tokens,
		refreshTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BaseURL returns the backend base URL
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// Get performs a GET request
func (g *Gateway) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return g.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post performs a POST request
func (g *Gateway) Post(ctx context.Context, path string, body, out interface{}) error {
	return g.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put performs a PUT request
func (g *Gateway) Put(ctx context.Context, path string, body, out interface{}) error {
	return g.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete performs a DELETE request
func (g *Gateway) Delete(ctx context.Context, path string, out interface{}) error {
	return g.Do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// Do performs req and decodes a JSON response into out when out is non-nil
func (g *Gateway) Do(ctx context.Context, req Request, out interface{}) error {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = json.Marshal(req.Body); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	authEndpoint := isAuthEndpoint(req.Path)

	var token string
	if !authEndpoint {
		token = g.tokens.AccessToken()
	}

	status, respBody, err := g.send(ctx, req, body, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !authEndpoint {
		log.Debug().Str("path", req.Path).Msg("Access token rejected, waiting for refresh")

		newToken, err := g.awaitRefresh(ctx, token)
		if err != nil {
			return err
		}

		status, respBody, err = g.send(ctx, req, body, newToken)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return newAPIError(req.Method, req.Path, status, respBody)
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
		}
	}
	return nil
}

// Refresh returns an access token to use in place of stale, refreshing the
// session if no newer token exists. It shares the single in-flight refresh
// with request retries and ends the session the same way when it fails.
func (g *Gateway) Refresh(ctx context.Context, stale string) (string, error) {
	return g.awaitRefresh(ctx, stale)
}

// awaitRefresh returns an access token to retry with after a 401 for a
// request sent with stale.
func (g *Gateway) awaitRefresh(ctx context.Context, stale string) (string, error) {
	g.mu.Lock()

	// Another call already rotated the token after this request was sent
	if current := g.tokens.AccessToken(); current != "" && current != stale {
		g.mu.Unlock()
		return current, nil
	}

	if g.refreshing {
		ch := make(chan refreshOutcome, 1)
		g.waiters = append(g.waiters, ch)
		g.mu.Unlock()

		select {
		case out := <-ch:
			return out.token, out.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	refreshToken := g.tokens.RefreshToken()
	if refreshToken != "" && refreshToken == g.failedRefresh {
		g.mu.Unlock()
		return "", fmt.Errorf("%w: refresh token already rejected", ErrRefreshFailure)
	}

	g.refreshing = true
	g.mu.Unlock()

	token, err := g.refresh(ctx, refreshToken)

	// A failure for a credential that has since been replaced says nothing
	// about the current session
	superseded := err != nil && g.tokens.RefreshToken() != refreshToken
	if superseded {
		if current := g.tokens.AccessToken(); current != "" {
			token, err = current, nil
		}
	}

	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.refreshing = false
	if err != nil && !superseded {
		g.failedRefresh = refreshToken
	}
	g.mu.Unlock()

	for _, w := range waiters {
		w <- refreshOutcome{token: token, err: err}
	}

	if superseded {
		log.Debug().Int("queued", len(waiters)).Msg("Refresh outdated by a newer credential")
		return token, err
	}
	if err != nil {
		log.Warn().Err(err).Int("queued", len(waiters)).Msg("Token refresh failed, ending session")
		g.signalForcedLogout(err)
		return "", err
	}

	log.Debug().Int("queued", len(waiters)).Msg("Access token refreshed")
	return token, nil
}

// refresh exchanges the refresh token for a new access token. The refresh
// outlives cancellation of the call that started it since other calls may
// be waiting on it.
func (g *Gateway) refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token", ErrRefreshFailure)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.refreshTimeout)
	defer cancel()

	var resp models.RefreshResponse
	err := g.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   RefreshPath,
		Header: BearerHeader(refreshToken),
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailure, err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: response has no access_token", ErrRefreshFailure)
	}

	if !g.tokens.RotateAccessToken(ctx, refreshToken, resp.AccessToken) {
		// The credential changed while refreshing
		current := g.tokens.AccessToken()
		if current == "" {
			return "", fmt.Errorf("%w: session ended during refresh", ErrRefreshFailure)
		}
		return current, nil
	}

	return resp.AccessToken, nil
}

func (g *Gateway) signalForcedLogout(err error) {
	if g.forced == nil {
		return
	}
	select {
	case g.forced <- err:
	default:
	}
}

func (g *Gateway) send(ctx context.Context, req Request, body []byte, token string) (int, []byte, error) {
	u := g.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Authorization") == "" && token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read %s %s response: %w", ErrNetwork, req.Method, req.Path, err)
	}

	return resp.StatusCode, respBody, nil
}

// BearerHeader returns a header set carrying token as bearer credential
func BearerHeader(token string) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+token)
	return h
}

func isAuthEndpoint(path string) bool {
	p := strings.TrimRight(path, "/")
	return strings.HasSuffix(p, LoginPath) ||
		strings.HasSuffix(p, RefreshPath) ||
		strings.HasSuffix(p, LogoutPath)
}
