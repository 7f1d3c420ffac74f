package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Fantasim/nftstake/internal/gateway"
	"github.com/Fantasim/nftstake/internal/models"
)

// HealthHandler returns a handler for the GET /api/health endpoint. It
// reports service status and the health of every configured chain gateway.
func HealthHandler(router *gateway.Router, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("health check requested", "remoteAddr", r.RemoteAddr)

		statuses := router.Health(r.Context())
		healthy := true
		for _, s := range statuses {
			if !s.Healthy {
				healthy = false
				break
			}
		}

		status := "ok"
		if !healthy {
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   status,
			"version":  version,
			"chains":   statuses,
			"supports": router.SupportedChains(),
		})
	}
}

// ChainsHandler returns GET /api/chains: the supported chain list.
func ChainsHandler(router *gateway.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.APIResponse{Data: router.SupportedChains()})
	}
}
