// Package dashboard serves the live view kept by the agent on a local
// HTTP API.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/gateway"
	"github.com/unitlink/unitlink/internal/livestate"
	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/session"
)

// Session is the session controller as seen by the dashboard
type Session interface {
	Snapshot() session.Snapshot
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context)
}

// Units reads the live units collection
type Units interface {
	View() livestate.UnitsView
	Get(id string) (models.Unit, bool)
}

// Alerts reads and acknowledges live alerts
type Alerts interface {
	View() livestate.AlertsView
	Acknowledge(ctx context.Context, id string) error
}

// Logs pages through connection logs
type Logs interface {
	Page(ctx context.Context, page, perPage int) (*models.LogPage, error)
}

// Roster is the admin user list
type Roster interface {
	Load(ctx context.Context) error
	List() []models.User
	Update(ctx context.Context, id string, up models.UserUpdate) error
	Delete(ctx context.Context, id string) error
}

// Deps are the components the dashboard reads from
type Deps struct {
	Session Session
	Units   Units
	Alerts  Alerts
	Logs    Logs
	Roster  Roster
}

// Server is the dashboard HTTP server
type Server struct {
	deps   Deps
	router chi.Router
	server *http.Server
}

// NewServer creates a dashboard server
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		router: chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.HandleHealth)
	s.router.Route("/api", s.setupAPIRoutes)
}

// ListenAndServe starts the server
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting dashboard API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requireSession rejects requests while no session is active
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.deps.Session.Snapshot().IsAuthenticated {
			s.respondError(w, http.StatusUnauthorized, "not signed in")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects requests from non admin sessions
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := s.deps.Session.Snapshot()
		if snap.CurrentUser == nil || snap.CurrentUser.Role != models.RoleAdmin {
			s.respondError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Dashboard request")
	})
}

// statusFor maps client core errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrRefreshFailure), errors.Is(err, gateway.ErrAuthFailure):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
