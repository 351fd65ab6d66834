package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/bridge", func(r chi.Router) {
			r.Get("/", s.handleGetBridge)
			r.Post("/refresh", s.handleRefreshBridge)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleAddDevice)

			r.Route("/{hwid}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleRemoveDevice)
				r.Get("/readings", s.handleListReadings)
				r.Post("/refresh", s.handleRefreshDevice)
			})
		})

		r.Route("/discovery", func(r chi.Router) {
			r.Get("/", s.handleListDiscovery)
			r.Post("/scan", s.handleScan)
			r.Post("/{hwid}/approve", s.handleApprove)
		})

		r.Get("/polls", s.handleListPolls)

		path := s.wsCfg.Path
		if path == "" {
			path = "/ws"
		}
		r.Get(path, s.handleWebSocket)
	})

	return r
}
