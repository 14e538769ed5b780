// internal/api/handler/settlement.go
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"coinflip-settlement/internal/api/types"
	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/service"
	"coinflip-settlement/internal/util"
)

// SettlementHandler handles bet placement.
type SettlementHandler struct {
	responder
	service service.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(svc service.SettlementService, logger *zap.Logger) *SettlementHandler {
	return &SettlementHandler{
		responder: responder{logger: logger},
		service:   svc,
	}
}

// PlaceBetRequest represents the request body for placing a bet on a deposit.
type PlaceBetRequest struct {
	DepositReference string      `json:"depositReference"`
	ChosenSide       domain.Side `json:"chosenSide"`
}

// PlaceBet settles a deposit the caller already made.
// POST /bets
func (h *SettlementHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	res, err := h.service.Settle(r.Context(), service.SettleRequest{
		DepositReference: req.DepositReference,
		ChosenSide:       req.ChosenSide,
	})
	if err != nil {
		if util.IsError(err, util.ErrDuplicateDeposit) && res != nil {
			h.respondWithJSON(w, http.StatusBadRequest, types.DuplicateBetResponse{
				Error:       "Deposit already settled",
				OutcomeSide: res.OutcomeSide,
				Won:         res.Won,
			})
			return
		}
		if !util.IsError(err, util.ErrInvalidInput) {
			h.logger.Warn("settlement rejected", zap.String("deposit_reference", req.DepositReference), zap.Error(err))
		}
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, types.NewBetResponse(res))
}
