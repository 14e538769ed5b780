// internal/repository/wager_repo.go
package repository

import (
	"context"

	"coinflip-settlement/internal/domain"
)

// WagerRepository is the settlement ledger: one terminal row per deposit reference.
type WagerRepository interface {
	// RecordSettlement inserts a settled wager and, for a win, its pending payout.
	// Callers pass a transaction so both rows land together.
	// A second wager for the same deposit reference yields util.ErrDuplicateDeposit.
	RecordSettlement(ctx context.Context, q DBExecutor, wager *domain.Wager, payout *domain.Payout) error
	// GetByDepositReference retrieves the wager settled for a deposit, with its payout state.
	GetByDepositReference(ctx context.Context, q DBExecutor, depositReference string) (*domain.WagerView, error)
	// ListWagers returns an account's wagers newest first and the total count.
	// A limit of 0 or less returns every wager from offset on.
	ListWagers(ctx context.Context, q DBExecutor, accountID int64, limit, offset int) ([]domain.WagerView, int64, error)
}
