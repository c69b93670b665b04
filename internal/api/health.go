package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is served by GET /api/v1/health.
type HealthResponse struct {
	Status         string            `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	DoorStale      bool              `json:"door_stale"`
	GateQueueDepth int               `json:"gate_queue_depth"`
	Components     map[string]string `json:"components"`
	WSClients      int               `json:"websocket_clients"`
}

// handleHealth reports "healthy" with 200, or "degraded" with 503 when a
// component check fails or the door state is stale.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Components:    make(map[string]string, len(s.healthChecks)),
		WSClients:     s.hub.ClientCount(),
	}
	if s.queueDepth != nil {
		resp.GateQueueDepth = s.queueDepth()
	}

	names := make([]string, 0, len(s.healthChecks))
	for name := range s.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.healthChecks[name].HealthCheck(ctx)
		cancel()

		if err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Components[name] = "ok"
	}

	if view := s.doorView(); view.Stale {
		resp.DoorStale = true
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
