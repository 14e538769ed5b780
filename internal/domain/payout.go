// internal/domain/payout.go
package domain

import "time"

// PayoutStatus defines the state of a payout transfer.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "PENDING"   // Recorded, not yet sent
	PayoutStatusSubmitted PayoutStatus = "SUBMITTED" // Sent, awaiting finality; never re-sent
	PayoutStatusConfirmed PayoutStatus = "CONFIRMED"
	PayoutStatusFailed    PayoutStatus = "FAILED"    // Provably not landed; retriable
	PayoutStatusAbandoned PayoutStatus = "ABANDONED" // Retry budget spent; manual reconciliation
)

// Payout is the retriable transfer owed to the winner of a wager.
type Payout struct {
	ID               int64        `db:"id" json:"id"`
	WagerID          string       `db:"wager_id" json:"wager_id"` // Unique: one payout per wager
	DepositReference string       `db:"deposit_reference" json:"deposit_reference"`
	RecipientAddress string       `db:"recipient_address" json:"recipient_address"`
	Amount           Lamports     `db:"amount" json:"amount"`
	Status           PayoutStatus `db:"status" json:"status"`
	Signature        *string      `db:"signature" json:"signature"`
	Attempts         int          `db:"attempts" json:"attempts"`
	LastError        *string      `db:"last_error" json:"last_error"`
	SubmittedAt      *time.Time   `db:"submitted_at" json:"submitted_at"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// NewPayout creates the pending payout for a won wager.
func NewPayout(w *Wager) *Payout {
	now := time.Now().UTC()
	return &Payout{
		WagerID:          w.ID,
		DepositReference: w.DepositReference,
		RecipientAddress: w.PayerAddress,
		Amount:           w.PayoutAmount,
		Status:           PayoutStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Sendable reports whether the payout may be (re)submitted to the ledger.
func (p *Payout) Sendable() bool {
	return p.Status == PayoutStatusPending || p.Status == PayoutStatusFailed
}
