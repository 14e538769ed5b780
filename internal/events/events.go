// internal/events/events.go
package events

import (
	"time"

	"github.com/google/uuid"

	"coinflip-settlement/internal/domain"
)

// Event names carried in every payload.
const (
	EventWagerSettled  = "wager_settled"
	EventPayoutUpdated = "payout_updated"
)

// WagerSettled is published once per settled deposit.
type WagerSettled struct {
	EventID          string          `json:"event_id"`
	Event            string          `json:"event"`
	WagerID          string          `json:"wager_id"`
	DepositReference string          `json:"deposit_reference"`
	AccountID        int64           `json:"account_id"`
	PayerAddress     string          `json:"payer_address"`
	ChosenSide       domain.Side     `json:"chosen_side"`
	OutcomeSide      domain.Side     `json:"outcome_side"`
	Won              bool            `json:"won"`
	WagerAmount      domain.Lamports `json:"wager_lamports"`
	PayoutAmount     domain.Lamports `json:"payout_lamports"`
	FeeAmount        domain.Lamports `json:"fee_lamports"`
	OutcomeSeed      string          `json:"outcome_seed"`
	SettledAt        time.Time       `json:"settled_at"`
	TsUnixMs         int64           `json:"ts_unix_ms"`
}

// NewWagerSettled builds the event for a settlement result.
func NewWagerSettled(res *domain.SettlementResult, now time.Time) WagerSettled {
	return WagerSettled{
		EventID:          uuid.NewString(),
		Event:            EventWagerSettled,
		WagerID:          res.WagerID,
		DepositReference: res.DepositReference,
		AccountID:        res.AccountID,
		PayerAddress:     res.PayerAddress,
		ChosenSide:       res.ChosenSide,
		OutcomeSide:      res.OutcomeSide,
		Won:              res.Won,
		WagerAmount:      res.WagerAmount,
		PayoutAmount:     res.PayoutAmount,
		FeeAmount:        res.FeeAmount,
		OutcomeSeed:      res.OutcomeSeed,
		SettledAt:        res.SettledAt,
		TsUnixMs:         now.UnixMilli(),
	}
}

// PayoutUpdated is published on every payout state change.
type PayoutUpdated struct {
	EventID          string              `json:"event_id"`
	Event            string              `json:"event"`
	PayoutID         int64               `json:"payout_id"`
	WagerID          string              `json:"wager_id"`
	DepositReference string              `json:"deposit_reference"`
	RecipientAddress string              `json:"recipient_address"`
	Amount           domain.Lamports     `json:"amount_lamports"`
	Status           domain.PayoutStatus `json:"status"`
	Signature        *string             `json:"signature,omitempty"`
	Attempts         int                 `json:"attempts"`
	LastError        *string             `json:"last_error,omitempty"`
	TsUnixMs         int64               `json:"ts_unix_ms"`
}

// NewPayoutUpdated builds the event for the payout's current state.
func NewPayoutUpdated(p *domain.Payout, now time.Time) PayoutUpdated {
	return PayoutUpdated{
		EventID:          uuid.NewString(),
		Event:            EventPayoutUpdated,
		PayoutID:         p.ID,
		WagerID:          p.WagerID,
		DepositReference: p.DepositReference,
		RecipientAddress: p.RecipientAddress,
		Amount:           p.Amount,
		Status:           p.Status,
		Signature:        p.Signature,
		Attempts:         p.Attempts,
		LastError:        p.LastError,
		TsUnixMs:         now.UnixMilli(),
	}
}
