package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/models"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.APIError{
		Error: models.APIErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, config.ErrorInvalidConfig, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrInvalidChain):
		writeError(w, http.StatusBadRequest, config.ErrorInvalidChain, err.Error())
	case errors.Is(err, config.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, config.ErrorInvalidAddress, err.Error())
	case errors.Is(err, config.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, config.ErrorInvalidDuration, err.Error())
	case errors.Is(err, config.ErrReasonTooShort):
		writeError(w, http.StatusBadRequest, config.ErrorReasonTooShort, err.Error())
	case errors.Is(err, config.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, config.ErrorInvalidConfig, err.Error())
	case errors.Is(err, config.ErrDuplicateContract):
		writeError(w, http.StatusConflict, config.ErrorDuplicateContract, err.Error())
	case errors.Is(err, config.ErrAlreadyStaked):
		writeError(w, http.StatusConflict, config.ErrorAlreadyStaked, err.Error())
	case errors.Is(err, config.ErrContractNotFound):
		writeError(w, http.StatusNotFound, config.ErrorContractNotFound, err.Error())
	case errors.Is(err, config.ErrPositionNotFound):
		writeError(w, http.StatusNotFound, config.ErrorPositionNotFound, err.Error())
	case errors.Is(err, config.ErrNoWallet):
		writeError(w, http.StatusNotFound, config.ErrorNoWallet, err.Error())
	case errors.Is(err, config.ErrContractUnavailable):
		writeError(w, http.StatusUnprocessableEntity, config.ErrorContractUnavailable, err.Error())
	case errors.Is(err, config.ErrPositionNotActive):
		writeError(w, http.StatusUnprocessableEntity, config.ErrorPositionNotActive, err.Error())
	case errors.Is(err, config.ErrNotOwner):
		writeError(w, http.StatusForbidden, config.ErrorNotOwner, err.Error())
	case errors.Is(err, config.ErrTooEarly):
		writeError(w, http.StatusUnprocessableEntity, config.ErrorTooEarly, err.Error())
	case errors.Is(err, config.ErrDistributionRunning):
		writeError(w, http.StatusConflict, config.ErrorDistributionRunning, err.Error())
	case errors.Is(err, config.ErrMigrationRunning):
		writeError(w, http.StatusConflict, config.ErrorMigrationRunning, err.Error())
	case config.IsUnknownOutcome(err):
		writeError(w, http.StatusBadGateway, config.ErrorGatewayTimeout, err.Error())
	case errors.Is(err, config.ErrGatewayTimeout):
		writeError(w, http.StatusGatewayTimeout, config.ErrorGatewayTimeout, err.Error())
	case errors.Is(err, config.ErrGatewayUnavailable), config.IsTransient(err):
		writeError(w, http.StatusBadGateway, config.ErrorGatewayUnavailable, err.Error())
	case errors.Is(err, config.ErrLockFailed):
		writeError(w, http.StatusBadGateway, config.ErrorLockFailed, err.Error())
	case errors.Is(err, config.ErrUnlockFailed):
		writeError(w, http.StatusBadGateway, config.ErrorUnlockFailed, err.Error())
	default:
		slog.Error("unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, config.ErrorInternal, "internal error")
	}
}
