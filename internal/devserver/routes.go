package devserver

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up the /api routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)

	// Auth routes
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
		r.Delete("/logout", s.HandleLogout)
		r.Post("/register_request", s.HandleRegisterRequest)
		r.Post("/set-password", s.HandleSetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/change-password", s.HandleChangePassword)
			r.Put("/profile/username", s.HandleUpdateUsername)
		})
	})

	// Devices
	r.Route("/devices", func(r chi.Router) {
		r.With(s.authMiddleware).Get("/", s.HandleListDevices)
		r.With(s.authMiddleware, s.adminOnly).Post("/", s.HandleCreateDevice)

		r.Route("/{id}", func(r chi.Router) {
			// Units report with their API key instead of a user token
			r.With(s.deviceKey).Post("/status", s.HandleReportStatus)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Get("/", s.HandleGetDevice)
				r.Get("/history", s.HandleDeviceHistory)
				r.With(s.adminOnly).Put("/", s.HandleUpdateDevice)
				r.With(s.adminOnly).Delete("/", s.HandleDeleteDevice)
			})
		})
	})

	// Alerts
	r.Route("/alerts", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/unacknowledged", s.HandleListAlerts)
		r.Post("/{id}/acknowledge", s.HandleAcknowledgeAlert)
	})

	// Connection logs
	r.Route("/logs", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.HandleListLogs)
	})

	// Administration
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.adminOnly)
		r.Route("/registration_requests", func(r chi.Router) {
			r.Get("/", s.HandleListRegistrationRequests)
			r.Post("/{id}/approve", s.HandleApproveRequest)
			r.Post("/{id}/reject", s.HandleRejectRequest)
		})
		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.HandleListUsers)
			r.Put("/{id}", s.HandleUpdateUser)
			r.Delete("/{id}", s.HandleDeleteUser)
		})
	})
}
