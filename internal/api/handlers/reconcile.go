package handlers

import (
	"net/http"

	"github.com/Fantasim/nftstake/internal/models"
	"github.com/Fantasim/nftstake/internal/reconcile"
)

// RunReconciliation handles POST /api/admin/reconcile?chain=
func RunReconciliation(rec *reconcile.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var chain *models.Chain
		if param := r.URL.Query().Get("chain"); param != "" {
			c := models.Chain(param)
			chain = &c
		}

		report, err := rec.Run(r.Context(), chain)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: report})
	}
}
