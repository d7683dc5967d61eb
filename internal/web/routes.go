package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/web/handlers"
	"github.com/kozaktomas/attendance/internal/web/static"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() error {
	tmpl, err := static.Dashboard()
	if err != nil {
		return fmt.Errorf("parsing dashboard template: %w", err)
	}

	logger := s.logger
	d := s.deps

	// Create handlers
	dashboardHandler := handlers.NewDashboardHandler(d.Ledger, d.Ledger, d.Sessions, tmpl, logger)
	studentsHandler := handlers.NewStudentsHandler(d.Ledger, d.Service, logger)
	attendanceHandler := handlers.NewAttendanceHandler(d.Ledger, d.Service, logger)
	recognizeHandler := handlers.NewRecognizeHandler(d.Service, logger)

	s.router.Get("/", dashboardHandler.Show)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	if d.Registry != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		// Students
		r.Get("/students", studentsHandler.List)
		r.Post("/students", studentsHandler.Register)

		// Attendance
		r.Get("/attendance", attendanceHandler.List)
		r.Get("/attendance/export", attendanceHandler.Export)
		r.Post("/attendance/{matric}", attendanceHandler.Mark)

		// Still images
		r.Post("/recognize", recognizeHandler.Recognize)

		// Camera sessions (long-running)
		if d.Sessions != nil {
			sessionsHandler := handlers.NewSessionsHandler(d.Sessions, d.CameraDevice, logger)
			r.Post("/sessions", sessionsHandler.Start)
			r.Get("/sessions", sessionsHandler.List)
			r.Get("/sessions/{sessionId}", sessionsHandler.Get)
			r.Delete("/sessions/{sessionId}", sessionsHandler.Stop)
			r.Get("/sessions/{sessionId}/stream", sessionsHandler.Stream)
			r.Get("/sessions/{sessionId}/frame", sessionsHandler.Frame)
			r.Get("/sessions/{sessionId}/events", sessionsHandler.Events)
		}

		// Gallery
		if d.Gallery != nil {
			galleryHandler := handlers.NewGalleryHandler(d.Gallery, d.Index, d.Embedder, logger)
			r.Get("/gallery/stats", galleryHandler.Stats)
			r.Post("/gallery/search", galleryHandler.Search)
			r.Post("/gallery/reindex", galleryHandler.Reindex)
		}
	})
	return nil
}
