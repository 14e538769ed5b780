// internal/api/handler/account.go
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"coinflip-settlement/internal/api/types"
	"coinflip-settlement/internal/service"
	"coinflip-settlement/internal/util"
)

// AccountHandler handles wallet connection and wager history.
type AccountHandler struct {
	responder
	service service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc service.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		responder: responder{logger: logger},
		service:   svc,
	}
}

// ConnectRequest represents the request body for connecting a wallet.
type ConnectRequest struct {
	Address string `json:"address"`
}

// Connect registers the caller's ledger address.
// POST /accounts/connect
func (h *AccountHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	account, created, err := h.service.Connect(r.Context(), req.Address)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	message := "Wallet already connected"
	if created {
		message = "Wallet connected"
	}
	h.respondWithJSON(w, http.StatusOK, types.ConnectResponse{
		Message: message,
		Created: created,
		Address: account.Address,
	})
}

// History lists the settled wagers of an address, newest first.
// GET /accounts/{address}/wagers?limit=&offset=
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	// Without a limit the full history is returned.
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	wagers, total, err := h.service.History(r.Context(), address, limit, offset)
	if err != nil {
		h.logger.Debug("history lookup failed", zap.String("address", address), zap.Error(err))
		h.respondWithError(w, err)
		return
	}

	data := make([]types.WagerResponse, 0, len(wagers))
	for i := range wagers {
		data = append(data, types.NewWagerResponse(&wagers[i]))
	}
	h.respondWithJSON(w, http.StatusOK, types.ListResponse[types.WagerResponse]{
		Data:  data,
		Count: total,
	})
}

// queryInt parses an optional non-negative query parameter; absent is 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer: %w", name, util.ErrInvalidInput)
	}
	return n, nil
}
