// internal/repository/postgres/wager_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/repository"
	"coinflip-settlement/internal/util"

	"github.com/lib/pq"
)

const (
	uniqueViolation          = pq.ErrorCode("23505")
	depositReferenceUniqueCK = "wagers_deposit_reference_key"
)

const wagerViewColumns = `
		w.id, w.deposit_reference, w.account_id, w.payer_address, w.wager_amount,
		w.chosen_side, w.outcome_side, w.status, w.payout_amount, w.fee_amount,
		w.outcome_seed, w.created_at, w.settled_at,
		p.status AS payout_status, p.signature AS payout_signature`

// WagerRepository implements repository.WagerRepository for PostgreSQL.
type WagerRepository struct{}

// NewWagerRepository creates a new WagerRepository.
func NewWagerRepository() repository.WagerRepository {
	return &WagerRepository{}
}

// RecordSettlement inserts the terminal wager and the pending payout, if any.
func (r *WagerRepository) RecordSettlement(ctx context.Context, q repository.DBExecutor, wager *domain.Wager, payout *domain.Payout) error {
	if !wager.Status.Terminal() {
		return fmt.Errorf("record settlement %s: wager is %s: %w", wager.DepositReference, wager.Status, util.ErrInvalidInput)
	}

	query := `INSERT INTO wagers (id, deposit_reference, account_id, payer_address, wager_amount,
                  chosen_side, outcome_side, status, payout_amount, fee_amount, outcome_seed, created_at, settled_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := q.ExecContext(ctx, query,
		wager.ID,
		wager.DepositReference,
		wager.AccountID,
		wager.PayerAddress,
		wager.WagerAmount,
		wager.ChosenSide,
		wager.OutcomeSide,
		wager.Status,
		wager.PayoutAmount,
		wager.FeeAmount,
		wager.OutcomeSeed,
		wager.CreatedAt,
		wager.SettledAt,
	)
	if err != nil {
		if isDuplicateDeposit(err) {
			return fmt.Errorf("record settlement %s: %w", wager.DepositReference, util.ErrDuplicateDeposit)
		}
		return fmt.Errorf("failed to record wager for deposit %s: %w", wager.DepositReference, err)
	}

	if payout == nil {
		return nil
	}
	if err := insertPayout(ctx, q, payout); err != nil {
		return fmt.Errorf("failed to record payout for deposit %s: %w", wager.DepositReference, err)
	}
	return nil
}

// GetByDepositReference retrieves a wager by its deposit reference using the provided DBExecutor.
func (r *WagerRepository) GetByDepositReference(ctx context.Context, q repository.DBExecutor, depositReference string) (*domain.WagerView, error) {
	var view domain.WagerView
	query := `SELECT ` + wagerViewColumns + `
		FROM wagers w
		LEFT JOIN payouts p ON p.wager_id = w.id
		WHERE w.deposit_reference = $1`
	err := q.GetContext(ctx, &view, query, depositReference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wager for deposit %s: %w", depositReference, err)
	}
	return &view, nil
}

// ListWagers retrieves an account's wagers, paginated when limit is positive.
// It performs two queries: one for the data and one for the total count.
func (r *WagerRepository) ListWagers(ctx context.Context, q repository.DBExecutor, accountID int64, limit, offset int) ([]domain.WagerView, int64, error) {
	wagers := []domain.WagerView{}
	// LIMIT NULL is no limit.
	pageSize := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}

	query := `SELECT ` + wagerViewColumns + `
		FROM wagers w
		LEFT JOIN payouts p ON p.wager_id = w.id
		WHERE w.account_id = $1
		ORDER BY w.created_at DESC, w.id
		LIMIT $2 OFFSET $3`
	if err := q.SelectContext(ctx, &wagers, query, accountID, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch wagers for account %d: %w", accountID, err)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM wagers WHERE account_id = $1`
	if err := q.GetContext(ctx, &total, countQuery, accountID); err != nil {
		return nil, 0, fmt.Errorf("failed to count wagers for account %d: %w", accountID, err)
	}

	return wagers, total, nil
}

func isDuplicateDeposit(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == depositReferenceUniqueCK
}
