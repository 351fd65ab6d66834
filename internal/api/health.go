package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Bridge        string            `json:"bridge"`
	Components    map[string]string `json:"components"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WSClients     int               `json:"ws_clients"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleHealth reports every configured component. Any failing component
// makes the daemon "degraded" and the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Bridge:        string(s.bridge.Status().State),
		Components:    make(map[string]string, len(s.checks)),
		WSClients:     s.hub.ClientCount(),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name].HealthCheck(ctx); err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Components[name] = "ok"
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	resp.Runtime = RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
		NumGC:         memStats.NumGC,
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
