package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	apiPrefix = "/api/v1"

	// healthCheckTimeout bounds each component check in GET /health.
	healthCheckTimeout = 2 * time.Second
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.middlewares()...)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route(apiPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/appliances", func(r chi.Router) {
			r.Get("/", s.handleListAppliances)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAppliance)
				r.Get("/attributes", s.handleGetAttributes)
				r.Get("/snapshot", s.handleGetSnapshot)
				r.Get("/discovered-keys", s.handleGetDiscoveredKeys)
				r.Delete("/discovered-keys", s.handleClearDiscoveredKeys)
				r.Get("/recent-events", s.handleGetRecentEvents)
				r.Get("/history", s.handleGetHistory)
				r.Post("/commands", s.handleCommand)
				r.Post("/events", s.handleInjectEvents)
			})
		})

		r.Get("/audit", s.handleListAudit)

		if strings.HasPrefix(s.wsPath(), apiPrefix+"/") {
			r.Get(strings.TrimPrefix(s.wsPath(), apiPrefix), s.handleWebSocket)
		}
	})

	if !strings.HasPrefix(s.wsPath(), apiPrefix+"/") {
		r.Get(s.wsPath(), s.handleWebSocket)
	}

	return r
}

// wsPath returns the configured WebSocket path.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return apiPrefix + "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports bridge status plus every registered component check.
// Any failing component turns the response into 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	components := make(map[string]string, len(s.checks)+1)
	if s.bridge.Connected() {
		components["mqtt"] = "ok"
	} else {
		components["mqtt"] = "disconnected"
		status = "degraded"
	}

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(s.bridge.Uptime().Seconds()),
		"appliances":     len(s.bridge.Devices()),
		"statistics":     s.bridge.Stats(),
		"components":     components,
		"ws_clients":     s.hub.ClientCount(),
	})
}
