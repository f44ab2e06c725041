package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/transfer"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body := errorBody{}
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeServiceError maps orchestrator errors to status codes. Storage
// failures keep their message so the operator sees what the database said.
func writeServiceError(w http.ResponseWriter, logger requestLogger, op string, err error) {
	switch {
	case errors.Is(err, transfer.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, transfer.ErrNotMigrated):
		writeError(w, http.StatusNotFound, "not_migrated", err.Error())
	case errors.Is(err, transfer.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, transfer.ErrSchemaMismatch):
		writeError(w, http.StatusUnprocessableEntity, "schema_mismatch", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error(op+" timed out", "error", err)
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "transaction_failed", err.Error())
	}
}
