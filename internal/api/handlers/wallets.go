package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/validate"
)

// RegisterWallet handles POST /api/users/{userId}/wallets
func RegisterWallet(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Chain     models.Chain `json:"chain"`
			Address   string       `json:"address"`
			IsPrimary bool         `json:"isPrimary"`
		}
		if !decodeBody(w, r, &in) {
			return
		}

		if !in.Chain.Valid() {
			writeError(w, http.StatusBadRequest, config.ErrorInvalidChain, "unsupported chain: "+string(in.Chain))
			return
		}
		if err := validate.Address(in.Chain, in.Address); err != nil {
			writeServiceError(w, err)
			return
		}

		wallet := models.Wallet{
			UserID:    chi.URLParam(r, "userId"),
			Chain:     in.Chain,
			Address:   validate.Normalize(in.Chain, in.Address),
			IsPrimary: in.IsPrimary,
			CreatedAt: time.Now().UTC(),
		}
		if err := database.UpsertWallet(wallet); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, models.APIResponse{Data: wallet})
	}
}

// ListWallets handles GET /api/users/{userId}/wallets
func ListWallets(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallets, err := database.ListWallets(chi.URLParam(r, "userId"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: wallets})
	}
}
