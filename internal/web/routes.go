package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/facegate/internal/web/handlers"
	"github.com/kozaktomas/facegate/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Engine, s.logger)
	personsHandler := handlers.NewPersonsHandler(s.deps.Engine, s.deps.Clearance, s.logger)
	sitesHandler := handlers.NewSitesHandler(s.deps.Sites)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireActor(s.auth))

		r.Post("/attendance", attendanceHandler.Submit)

		r.Post("/persons/{id}/faces", personsHandler.Enroll)
		r.Get("/persons/{id}/status", personsHandler.Status)
		r.Get("/persons/{id}/clearance", personsHandler.Clearance)

		r.Get("/sites", sitesHandler.List)
	})
}
