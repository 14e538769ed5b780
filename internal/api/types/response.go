// internal/api/types/response.go
package types

import (
	"time"

	"coinflip-settlement/internal/domain"
)

// ListResponse wraps a page of results with the total number of matching rows.
type ListResponse[T any] struct {
	Data  []T   `json:"data"`
	Count int64 `json:"count"`
}

// BetResponse is returned for a settled deposit.
type BetResponse struct {
	OutcomeSide    domain.Side          `json:"outcomeSide"`
	Won            bool                 `json:"won"`
	WagerID        string               `json:"wagerId"`
	WagerLamports  int64                `json:"wagerLamports"`
	WagerSOL       string               `json:"wagerSol"`
	PayoutLamports int64                `json:"payoutLamports"`
	PayoutSOL      string               `json:"payoutSol"`
	OutcomeSeed    string               `json:"outcomeSeed"`
	PayoutStatus   *domain.PayoutStatus `json:"payoutStatus,omitempty"`
}

// NewBetResponse builds the response for a settlement result.
func NewBetResponse(res *domain.SettlementResult) BetResponse {
	return BetResponse{
		OutcomeSide:    res.OutcomeSide,
		Won:            res.Won,
		WagerID:        res.WagerID,
		WagerLamports:  int64(res.WagerAmount),
		WagerSOL:       res.WagerAmount.String(),
		PayoutLamports: int64(res.PayoutAmount),
		PayoutSOL:      res.PayoutAmount.String(),
		OutcomeSeed:    res.OutcomeSeed,
		PayoutStatus:   res.PayoutStatus,
	}
}

// DuplicateBetResponse rejects a re-submitted deposit with its original result.
type DuplicateBetResponse struct {
	Error       string      `json:"error"`
	OutcomeSide domain.Side `json:"outcomeSide"`
	Won         bool        `json:"won"`
}

// ConnectResponse is returned when a wallet connects.
type ConnectResponse struct {
	Message string `json:"message"`
	Created bool   `json:"created"`
	Address string `json:"address"`
}

// WagerResponse is one entry of an account's wager history.
type WagerResponse struct {
	ID               string               `json:"id"`
	DepositReference string               `json:"depositReference"`
	ChosenSide       domain.Side          `json:"chosenSide"`
	OutcomeSide      domain.Side          `json:"outcomeSide"`
	Status           domain.WagerStatus   `json:"status"`
	WagerLamports    int64                `json:"wagerLamports"`
	WagerSOL         string               `json:"wagerSol"`
	PayoutLamports   int64                `json:"payoutLamports"`
	PayoutSOL        string               `json:"payoutSol"`
	FeeLamports      int64                `json:"feeLamports"`
	OutcomeSeed      string               `json:"outcomeSeed"`
	PayoutStatus     *domain.PayoutStatus `json:"payoutStatus,omitempty"`
	PayoutSignature  *string              `json:"payoutSignature,omitempty"`
	SettledAt        time.Time            `json:"settledAt"`
}

// NewWagerResponse converts a stored wager for display.
func NewWagerResponse(v *domain.WagerView) WagerResponse {
	return WagerResponse{
		ID:               v.ID,
		DepositReference: v.DepositReference,
		ChosenSide:       v.ChosenSide,
		OutcomeSide:      v.OutcomeSide,
		Status:           v.Status,
		WagerLamports:    int64(v.WagerAmount),
		WagerSOL:         v.WagerAmount.String(),
		PayoutLamports:   int64(v.PayoutAmount),
		PayoutSOL:        v.PayoutAmount.String(),
		FeeLamports:      int64(v.FeeAmount),
		OutcomeSeed:      v.OutcomeSeed,
		PayoutStatus:     v.PayoutStatus,
		PayoutSignature:  v.PayoutSignature,
		SettledAt:        v.SettledAt,
	}
}
