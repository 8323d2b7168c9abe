package gateway

import (
	"context"
	"net/http"
	"time"
)

const pingTimeout = 2 * time.Second

// HealthResponse is the JSON body returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	Connections   int    `json:"connections"`
	Agents        int    `json:"agents"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// AgentsResponse is the JSON body returned by GET /agents.
type AgentsResponse struct {
	Agents      []string `json:"agents"`
	Connections int      `json:"connections"`
}

func pingStore(ctx context.Context, p Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}

func healthHandler(deps HandlerDeps, registry *Registry, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:        "ok",
			Database:      "up",
			Connections:   registry.Len(),
			Agents:        len(registry.ListAgents()),
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
		}
		status := http.StatusOK
		if err := pingStore(r.Context(), deps.Store); err != nil {
			deps.Logger.Warn("health check: store unreachable", "error", err)
			resp.Status = "error"
			resp.Database = "down"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func readinessHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pingStore(r.Context(), deps.Store); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

func agentsHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, AgentsResponse{
			Agents:      registry.ListAgents(),
			Connections: registry.Len(),
		})
	}
}
