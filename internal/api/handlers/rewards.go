package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/rewards"
)

// DistributeRewards handles POST /api/admin/rewards/distribute
func DistributeRewards(engine *rewards.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := engine.DistributeMonthly(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: summary})
	}
}

// PendingRewards handles GET /api/positions/{id}/rewards
func PendingRewards(engine *rewards.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := engine.CalculatePending(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: pending})
	}
}
