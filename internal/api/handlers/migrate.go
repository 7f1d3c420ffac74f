package handlers

import (
	"net/http"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/migration"
	"github.com/Fantasim/nftstake/internal/models"
)

// RunMigration handles POST /api/admin/migrate
func RunMigration(orc *migration.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			DryRun    bool          `json:"dryRun"`
			BatchSize int           `json:"batchSize"`
			Chain     *models.Chain `json:"chain"`
		}
		if !decodeBody(w, r, &in) {
			return
		}
		if in.BatchSize == 0 {
			in.BatchSize = config.MigrationMaxBatchSize
		}

		report, err := orc.Run(r.Context(), migration.Options{
			DryRun:    in.DryRun,
			BatchSize: in.BatchSize,
			Chain:     in.Chain,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: report})
	}
}
