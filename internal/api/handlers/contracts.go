package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/registry"
	"github.com/Fantasim/nftstake/internal/rewards"
)

// CreateContract handles POST /api/contracts
func CreateContract(reg *registry.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in registry.CreateInput
		if !decodeBody(w, r, &in) {
			return
		}

		contract, err := reg.Create(in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, models.APIResponse{Data: contract})
	}
}

// GetContract handles GET /api/contracts/{id}
func GetContract(reg *registry.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contract, err := reg.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: contract})
	}
}

// ListContracts handles GET /api/contracts?chain=
func ListContracts(reg *registry.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var chain *models.Chain
		if param := r.URL.Query().Get("chain"); param != "" {
			c := models.Chain(param)
			chain = &c
		}

		contracts, err := reg.List(chain)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: contracts})
	}
}

// UpdateContract handles PUT /api/contracts/{id}
func UpdateContract(reg *registry.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in registry.UpdateInput
		if !decodeBody(w, r, &in) {
			return
		}

		contract, err := reg.Update(chi.URLParam(r, "id"), in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: contract})
	}
}

// ValidateContract handles POST /api/contracts/{id}/validate
func ValidateContract(reg *registry.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			ValidatedBy string `json:"validatedBy"`
			Notes       string `json:"notes"`
		}
		if !decodeBody(w, r, &in) {
			return
		}

		contract, err := reg.Validate(chi.URLParam(r, "id"), in.ValidatedBy, in.Notes)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: contract})
	}
}

// DeactivateContract handles DELETE /api/contracts/{id}
func DeactivateContract(reg *registry.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contract, err := reg.Deactivate(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: contract})
	}
}

// ProjectRewards handles GET /api/contracts/{id}/projection?duration=&nftCount=
func ProjectRewards(reg *registry.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contract, err := reg.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		months, err := strconv.Atoi(r.URL.Query().Get("duration"))
		if err != nil {
			writeError(w, http.StatusBadRequest, config.ErrorInvalidDuration, "duration query parameter must be 6, 12, or 36")
			return
		}
		duration := models.DurationTier(months)
		if !duration.Valid() {
			writeError(w, http.StatusBadRequest, config.ErrorInvalidDuration, "duration must be 6, 12, or 36 months")
			return
		}

		nftCount := 1
		if param := r.URL.Query().Get("nftCount"); param != "" {
			nftCount, err = strconv.Atoi(param)
			if err != nil || nftCount < 1 {
				writeError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "nftCount must be a positive integer")
				return
			}
		}

		projection := rewards.Project(contract, duration, nftCount)
		slog.Debug("reward projection computed",
			"contractId", contract.ID,
			"duration", months,
			"nftCount", nftCount,
			"totalTickets", projection.TotalTickets,
		)
		writeJSON(w, http.StatusOK, models.APIResponse{Data: projection})
	}
}
