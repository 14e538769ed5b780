// internal/repository/postgres/account_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/repository"
	"coinflip-settlement/internal/util"
)

// AccountRepository implements repository.AccountRepository for PostgreSQL.
type AccountRepository struct{}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository() repository.AccountRepository {
	return &AccountRepository{}
}

// CreateAccount inserts an account, leaving an existing row for the same address untouched.
func (r *AccountRepository) CreateAccount(ctx context.Context, q repository.DBExecutor, account *domain.Account) (bool, error) {
	query := `INSERT INTO accounts (address, created_at, updated_at)
              VALUES ($1, $2, $3)
              ON CONFLICT (address) DO NOTHING
              RETURNING id`
	err := q.QueryRowContext(ctx, query, account.Address, account.CreatedAt, account.UpdatedAt).Scan(&account.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to create account %s: %w", account.Address, err)
	}

	existing, err := r.GetAccountByAddress(ctx, q, account.Address)
	if err != nil {
		return false, err
	}
	*account = *existing
	return false, nil
}

// GetAccountByAddress retrieves an account by its address using the provided DBExecutor.
func (r *AccountRepository) GetAccountByAddress(ctx context.Context, q repository.DBExecutor, address string) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, address, created_at, updated_at FROM accounts WHERE address = $1`
	err := q.GetContext(ctx, &account, query, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by address %s: %w", address, err)
	}
	return &account, nil
}
