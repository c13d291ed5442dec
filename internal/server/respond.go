package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/evituu/bar-market/internal/market"
)

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// errorBody is the machine-readable failure shape of the API.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorBody{Error: message, Code: code})
}

// writeDomainError maps the market error taxonomy onto HTTP statuses and
// stable codes. Anything unrecognized is reported as a generic internal
// error; the details stay in the log.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, market.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "ITEM_NOT_FOUND", err.Error())
	case errors.Is(err, market.ErrItemInactive):
		writeError(w, http.StatusUnprocessableEntity, "ITEM_INACTIVE", err.Error())
	case errors.Is(err, market.ErrLockNotFound):
		writeError(w, http.StatusNotFound, "LOCK_NOT_FOUND", err.Error())
	case errors.Is(err, market.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "ORDER_NOT_FOUND", err.Error())
	case errors.Is(err, market.ErrSessionMismatch):
		writeError(w, http.StatusForbidden, "SESSION_MISMATCH", err.Error())
	case errors.Is(err, market.ErrOrderAlreadySettled):
		writeError(w, http.StatusConflict, "ORDER_ALREADY_SETTLED", err.Error())
	case errors.Is(err, market.ErrNoValidReservations):
		writeError(w, http.StatusGone, "NO_VALID_RESERVATIONS", err.Error())
	case errors.Is(err, market.ErrInvalidPriceRange):
		writeError(w, http.StatusBadRequest, "INVALID_PRICE_RANGE", err.Error())
	case errors.Is(err, market.ErrInvalidEventKind):
		writeError(w, http.StatusBadRequest, "INVALID_EVENT_KIND", err.Error())
	case errors.Is(err, market.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "INVALID_QUANTITY", err.Error())
	default:
		logger.Error("unexpected error handling request", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
