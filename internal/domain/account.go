// internal/domain/account.go
package domain

import "time"

// Account represents a registered participant, keyed by ledger address.
type Account struct {
	ID        int64     `db:"id" json:"id"`                 // Primary key, BIGSERIAL in DB
	Address   string    `db:"address" json:"address"`       // Unique base58 ledger address
	CreatedAt time.Time `db:"created_at" json:"created_at"` // Timestamp of creation
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"` // Timestamp of last update
}

// NewAccount creates a new Account instance.
func NewAccount(address string) *Account {
	now := time.Now().UTC()
	return &Account{
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
