// internal/domain/wager.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Side is one of the two symmetric outcomes of a flip.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// WagerStatus defines the settlement state of a wager.
type WagerStatus string

const (
	// WagerStatusPending exists only in memory while a settlement is processed.
	WagerStatusPending WagerStatus = "PENDING"
	WagerStatusWon     WagerStatus = "WON"
	WagerStatusLost    WagerStatus = "LOST"
)

// Terminal reports whether the status is final.
func (s WagerStatus) Terminal() bool {
	return s == WagerStatusWon || s == WagerStatusLost
}

// Wager represents one settled bet. Rows are written once, in a terminal state.
type Wager struct {
	ID               string      `db:"id" json:"id"`                               // UUID
	DepositReference string      `db:"deposit_reference" json:"deposit_reference"` // Ledger transaction signature, unique
	AccountID        int64       `db:"account_id" json:"account_id"`               // Foreign key to Account
	PayerAddress     string      `db:"payer_address" json:"payer_address"`         // Read from the verified transaction
	WagerAmount      Lamports    `db:"wager_amount" json:"wager_amount"`           // On-chain balance delta
	ChosenSide       Side        `db:"chosen_side" json:"chosen_side"`
	OutcomeSide      Side        `db:"outcome_side" json:"outcome_side"`
	Status           WagerStatus `db:"status" json:"status"`
	PayoutAmount     Lamports    `db:"payout_amount" json:"payout_amount"` // Zero unless WON
	FeeAmount        Lamports    `db:"fee_amount" json:"fee_amount"`
	OutcomeSeed      string      `db:"outcome_seed" json:"outcome_seed"` // Hex seed, revealed for audit
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	SettledAt        time.Time   `db:"settled_at" json:"settled_at"`
}

// NewPendingWager creates an in-memory wager from a verified deposit.
func NewPendingWager(depositReference string, accountID int64, payer string, amount Lamports, chosen Side) *Wager {
	return &Wager{
		ID:               uuid.NewString(),
		DepositReference: depositReference,
		AccountID:        accountID,
		PayerAddress:     payer,
		WagerAmount:      amount,
		ChosenSide:       chosen,
		Status:           WagerStatusPending,
		CreatedAt:        time.Now().UTC(),
	}
}

// Settle moves a pending wager to its terminal state. payout and fee are
// ignored for a loss. It returns false if the wager was already settled.
func (w *Wager) Settle(outcome Side, seed string, payout, fee Lamports) bool {
	if w.Status.Terminal() {
		return false
	}
	w.OutcomeSide = outcome
	w.OutcomeSeed = seed
	w.SettledAt = time.Now().UTC()
	if outcome == w.ChosenSide {
		w.Status = WagerStatusWon
		w.PayoutAmount = payout
		w.FeeAmount = fee
		return true
	}
	w.Status = WagerStatusLost
	w.PayoutAmount = 0
	w.FeeAmount = 0
	return true
}

// Won reports whether the wager was won.
func (w *Wager) Won() bool {
	return w.Status == WagerStatusWon
}

// WagerView is a wager joined with its payout state for history reads.
type WagerView struct {
	Wager
	PayoutStatus    *PayoutStatus `db:"payout_status" json:"payout_status,omitempty"`
	PayoutSignature *string       `db:"payout_signature" json:"payout_signature,omitempty"`
}

// SettlementResult is the outcome of settling one deposit, as returned to callers and cached.
type SettlementResult struct {
	WagerID          string        `json:"wager_id"`
	DepositReference string        `json:"deposit_reference"`
	AccountID        int64         `json:"account_id"`
	PayerAddress     string        `json:"payer_address"`
	ChosenSide       Side          `json:"chosen_side"`
	OutcomeSide      Side          `json:"outcome_side"`
	Won              bool          `json:"won"`
	WagerAmount      Lamports      `json:"wager_amount"`
	PayoutAmount     Lamports      `json:"payout_amount"`
	FeeAmount        Lamports      `json:"fee_amount"`
	OutcomeSeed      string        `json:"outcome_seed"`
	PayoutStatus     *PayoutStatus `json:"payout_status,omitempty"`
	SettledAt        time.Time     `json:"settled_at"`
}

// NewSettlementResult summarizes a settled wager.
func NewSettlementResult(w *Wager, payoutStatus *PayoutStatus) *SettlementResult {
	return &SettlementResult{
		WagerID:          w.ID,
		DepositReference: w.DepositReference,
		AccountID:        w.AccountID,
		PayerAddress:     w.PayerAddress,
		ChosenSide:       w.ChosenSide,
		OutcomeSide:      w.OutcomeSide,
		Won:              w.Won(),
		WagerAmount:      w.WagerAmount,
		PayoutAmount:     w.PayoutAmount,
		FeeAmount:        w.FeeAmount,
		OutcomeSeed:      w.OutcomeSeed,
		PayoutStatus:     payoutStatus,
		SettledAt:        w.SettledAt,
	}
}
