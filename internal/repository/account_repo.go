// internal/repository/account_repo.go
package repository

import (
	"context"

	"coinflip-settlement/internal/domain"
)

// AccountRepository defines the interface for account data operations.
type AccountRepository interface {
	// CreateAccount inserts the account unless its address is already registered.
	// It reports whether a new row was written; either way account is filled from the stored row.
	CreateAccount(ctx context.Context, q DBExecutor, account *domain.Account) (bool, error)
	// GetAccountByAddress retrieves an account by its ledger address.
	GetAccountByAddress(ctx context.Context, q DBExecutor, address string) (*domain.Account, error)
}
