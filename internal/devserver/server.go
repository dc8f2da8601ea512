// Package devserver is a development backend serving the UnitLink REST and
// realtime contract on top of the gorm store.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/unitlink/unitlink/internal/auth"
	"github.com/unitlink/unitlink/internal/config"
	"github.com/unitlink/unitlink/internal/models"
	"github.com/unitlink/unitlink/internal/storage"
	"github.com/unitlink/unitlink/internal/validation"
)

type contextKey string

const claimsKey contextKey = "claims"

// DeviceKeyHeader carries the shared key units use to report status
const DeviceKeyHeader = "X-Device-Api-Key"

// Publisher forwards a realtime event to one fan-out target
type Publisher interface {
	Publish(event string, payload []byte) error
}

// RESTServer represents the REST API server
type RESTServer struct {
	config     *config.Config
	store      storage.Store
	auth       *auth.JWTManager
	validator  *validation.Validator
	hub        *Hub
	publishers []Publisher
	router     chi.Router
	server     *http.Server
	now        func() time.Time
}

// NewRESTServer creates a new REST API server. Events go to the websocket
// hub and to every extra publisher.
func NewRESTServer(cfg *config.Config, store storage.Store, jwt *auth.JWTManager, publishers ...Publisher) *RESTServer {
	s := &RESTServer{
		config:     cfg,
		store:      store,
		auth:       jwt,
		validator:  validation.NewValidator(),
		hub:        NewHub(jwt),
		publishers: publishers,
		router:     chi.NewRouter(),
		now:        func() time.Time { return time.Now().UTC() },
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *RESTServer) Hub() *Hub {
	return s.hub
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.DevServer.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", DeviceKeyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The stream stays open far longer than any request timeout
	s.router.Get("/ws", s.hub.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr

	log.Info().Str("addr", addr).Msg("Starting REST API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.respondError(w, http.StatusUnauthorized, "Missing Authorization Header")
			return
		}

		claims, err := s.auth.ValidateToken(token, auth.TypeAccess)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "Token is invalid or has expired")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminOnly rejects callers whose token does not carry the admin role
func (s *RESTServer) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		if claims == nil || claims.Role != models.RoleAdmin {
			s.respondError(w, http.StatusForbidden, "Admins only access!")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// deviceKey authenticates units reporting their own status
func (s *RESTServer) deviceKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.config.DevServer.DeviceAPIKey
		if want == "" || r.Header.Get(DeviceKeyHeader) != want {
			s.respondError(w, http.StatusUnauthorized, "Invalid or missing Device API Key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// emit sends an event to every connected client and publisher
func (s *RESTServer) emit(event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to encode realtime event")
		return
	}

	s.hub.Publish(event, payload)
	for _, p := range s.publishers {
		if err := p.Publish(event, payload); err != nil {
			log.Warn().Err(err).Str("event", event).Msg("Failed to publish realtime event")
		}
	}
}

// decode reads a JSON body into dst and validates it
func (s *RESTServer) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "Request body must be JSON")
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), validation.ErrInvalid.Error()+": "))
		return false
	}
	return true
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"message": message,
	})
}

// respondStoreError maps storage errors onto a response
func (s *RESTServer) respondStoreError(w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, notFound)
	case errors.Is(err, storage.ErrDuplicateKey):
		s.respondError(w, http.StatusConflict, "Resource already exists")
	default:
		log.Error().Err(err).Msg("Storage operation failed")
		s.respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
