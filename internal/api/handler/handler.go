// internal/api/handler/handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"coinflip-settlement/internal/util"
)

// DefaultTimeout bounds a request, including deposit polling and payout submission.
const DefaultTimeout = 30 * time.Second

// responder writes JSON bodies and maps service errors to status codes.
type responder struct {
	logger *zap.Logger
}

// respondWithJSON sends payload as a JSON response.
func (h responder) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError sends an error response.
func (h responder) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case util.IsError(err, util.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		message = err.Error()
	case util.IsError(err, util.ErrDepositNotFound):
		statusCode = http.StatusBadRequest
		message = "Deposit transaction not found"
	case util.IsError(err, util.ErrInvalidDeposit):
		statusCode = http.StatusBadRequest
		message = "Transaction is not a valid deposit"
	case util.IsError(err, util.ErrUnknownAccount):
		statusCode = http.StatusBadRequest
		message = "Wallet not connected"
	case util.IsError(err, util.ErrDuplicateDeposit):
		statusCode = http.StatusBadRequest
		message = "Deposit already settled"
	case util.IsError(err, util.ErrSettlementInProgress):
		statusCode = http.StatusConflict
		message = "Deposit settlement already in progress"
	case util.IsError(err, util.ErrNotFound):
		statusCode = http.StatusNotFound
		message = "Resource not found"
	default:
		h.logger.Error("Unhandled service error", zap.Error(err))
	}

	h.respondWithJSON(w, statusCode, map[string]string{"error": message})
}
