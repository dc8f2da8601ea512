package dashboard

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up the /api routes
func (s *Server) setupAPIRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.HandleSession)
		r.Post("/login", s.HandleLogin)
		r.Post("/logout", s.HandleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/units", s.HandleListUnits)
		r.Get("/units/{id}", s.HandleGetUnit)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.HandleListAlerts)
			r.Post("/{id}/acknowledge", s.HandleAcknowledgeAlert)
		})

		r.Get("/logs", s.HandleListLogs)

		r.Route("/users", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/", s.HandleListUsers)
			r.Put("/{id}", s.HandleUpdateUser)
			r.Delete("/{id}", s.HandleDeleteUser)
		})
	})
}
