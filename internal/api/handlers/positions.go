package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/position"
)

// Stake handles POST /api/positions
func Stake(mgr *position.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in position.StakeInput
		if !decodeBody(w, r, &in) {
			return
		}
		if in.UserID == "" {
			writeError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "userId is required")
			return
		}

		pos, err := mgr.Stake(r.Context(), in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, models.APIResponse{Data: pos})
	}
}

// Unstake handles POST /api/positions/{id}/unstake
func Unstake(mgr *position.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			UserID string `json:"userId"`
		}
		if !decodeBody(w, r, &in) {
			return
		}

		pos, err := mgr.Unstake(r.Context(), chi.URLParam(r, "id"), in.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: pos})
	}
}

// GetPosition handles GET /api/positions/{id}
func GetPosition(mgr *position.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, err := mgr.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: pos})
	}
}

// ListUserPositions handles GET /api/users/{userId}/positions?status=
func ListUserPositions(mgr *position.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status *models.PositionStatus
		if param := r.URL.Query().Get("status"); param != "" {
			s := models.PositionStatus(param)
			if s != models.StatusActive && s != models.StatusUnstaked && s != models.StatusExpired {
				writeError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "status must be active, unstaked, or expired")
				return
			}
			status = &s
		}

		positions, err := mgr.ListForUser(chi.URLParam(r, "userId"), status)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: positions})
	}
}

// AdminUnlock handles POST /api/admin/positions/{id}/unlock
func AdminUnlock(mgr *position.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Admin  string `json:"admin"`
			Reason string `json:"reason"`
		}
		if !decodeBody(w, r, &in) {
			return
		}
		if in.Admin == "" {
			writeError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "admin identity is required")
			return
		}

		pos, err := mgr.AdminUnlock(r.Context(), chi.URLParam(r, "id"), in.Admin, in.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: pos})
	}
}

// EmergencyWithdraw handles POST /api/admin/positions/{id}/emergency-withdraw
func EmergencyWithdraw(mgr *position.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Admin     string `json:"admin"`
			Recipient string `json:"recipient"`
			Reason    string `json:"reason"`
		}
		if !decodeBody(w, r, &in) {
			return
		}
		if in.Admin == "" {
			writeError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "admin identity is required")
			return
		}

		pos, err := mgr.AdminEmergencyWithdraw(r.Context(), chi.URLParam(r, "id"), in.Admin, in.Recipient, in.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: pos})
	}
}

// PauseChain handles POST /api/admin/chains/{chain}/pause
func PauseChain(mgr *position.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Admin string `json:"admin"`
		}
		if !decodeBody(w, r, &in) {
			return
		}

		chain := models.Chain(chi.URLParam(r, "chain"))
		if err := mgr.Pause(r.Context(), chain, in.Admin); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: map[string]string{"chain": string(chain), "staking": "paused"}})
	}
}

// UnpauseChain handles POST /api/admin/chains/{chain}/unpause
func UnpauseChain(mgr *position.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Admin string `json:"admin"`
		}
		if !decodeBody(w, r, &in) {
			return
		}

		chain := models.Chain(chi.URLParam(r, "chain"))
		if err := mgr.Unpause(r.Context(), chain, in.Admin); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: map[string]string{"chain": string(chain), "staking": "active"}})
	}
}
