// internal/repository/postgres/payout_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/repository"
	"coinflip-settlement/internal/util"
)

const payoutColumns = `id, wager_id, deposit_reference, recipient_address, amount, status,
		signature, attempts, last_error, submitted_at, created_at, updated_at`

// PayoutRepository implements repository.PayoutRepository for PostgreSQL.
type PayoutRepository struct {
	now func() time.Time
}

// NewPayoutRepository creates a new PayoutRepository.
func NewPayoutRepository() repository.PayoutRepository {
	return &PayoutRepository{now: time.Now}
}

// insertPayout writes a new payout row and fills its ID.
func insertPayout(ctx context.Context, q repository.DBExecutor, payout *domain.Payout) error {
	query := `INSERT INTO payouts (wager_id, deposit_reference, recipient_address, amount, status, attempts, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	return q.QueryRowContext(ctx, query,
		payout.WagerID,
		payout.DepositReference,
		payout.RecipientAddress,
		payout.Amount,
		payout.Status,
		payout.Attempts,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Scan(&payout.ID)
}

// GetPayoutByID retrieves a payout by its ID using the provided DBExecutor.
func (r *PayoutRepository) GetPayoutByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Payout, error) {
	var payout domain.Payout
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	if err := q.GetContext(ctx, &payout, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payout %d: %w", id, err)
	}
	return &payout, nil
}

// ListPayoutsByStatus retrieves payouts in a status, oldest update first.
func (r *PayoutRepository) ListPayoutsByStatus(ctx context.Context, q repository.DBExecutor, status domain.PayoutStatus, limit int) ([]domain.Payout, error) {
	payouts := []domain.Payout{}
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE status = $1 ORDER BY updated_at, id LIMIT $2`
	if err := q.SelectContext(ctx, &payouts, query, status, limit); err != nil {
		return nil, fmt.Errorf("failed to list %s payouts: %w", status, err)
	}
	return payouts, nil
}

// MarkSubmitted stores the broadcast signature.
func (r *PayoutRepository) MarkSubmitted(ctx context.Context, q repository.DBExecutor, id int64, signature string, submittedAt time.Time) error {
	query := `UPDATE payouts
              SET status = $1, signature = $2, submitted_at = $3, attempts = attempts + 1, last_error = NULL, updated_at = $4
              WHERE id = $5 AND status IN ($6, $7)`
	return r.transition(ctx, q, id, "submitted", query,
		domain.PayoutStatusSubmitted, signature, submittedAt, r.now().UTC(), id,
		domain.PayoutStatusPending, domain.PayoutStatusFailed)
}

// MarkFailed records a failure that happened before anything was broadcast.
func (r *PayoutRepository) MarkFailed(ctx context.Context, q repository.DBExecutor, id int64, reason string) error {
	query := `UPDATE payouts
              SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = $3
              WHERE id = $4 AND status IN ($5, $1)`
	return r.transition(ctx, q, id, "failed", query,
		domain.PayoutStatusFailed, reason, r.now().UTC(), id, domain.PayoutStatusPending)
}

// MarkSubmissionFailed records that the transfer broadcast under signature cannot land.
// The attempt was counted when it was submitted.
func (r *PayoutRepository) MarkSubmissionFailed(ctx context.Context, q repository.DBExecutor, id int64, signature, reason string) error {
	query := `UPDATE payouts SET status = $1, last_error = $2, updated_at = $3
              WHERE id = $4 AND status = $5 AND signature = $6`
	return r.transition(ctx, q, id, "failed", query,
		domain.PayoutStatusFailed, reason, r.now().UTC(), id, domain.PayoutStatusSubmitted, signature)
}

// MarkConfirmed records that the transfer broadcast under signature is final.
func (r *PayoutRepository) MarkConfirmed(ctx context.Context, q repository.DBExecutor, id int64, signature string) error {
	query := `UPDATE payouts SET status = $1, last_error = NULL, updated_at = $2
              WHERE id = $3 AND status = $4 AND signature = $5`
	return r.transition(ctx, q, id, "confirmed", query,
		domain.PayoutStatusConfirmed, r.now().UTC(), id, domain.PayoutStatusSubmitted, signature)
}

// MarkAbandoned stops retrying a failed payout.
func (r *PayoutRepository) MarkAbandoned(ctx context.Context, q repository.DBExecutor, id int64, reason string) error {
	query := `UPDATE payouts SET status = $1, last_error = $2, updated_at = $3 WHERE id = $4 AND status = $5`
	return r.transition(ctx, q, id, "abandoned", query,
		domain.PayoutStatusAbandoned, reason, r.now().UTC(), id, domain.PayoutStatusFailed)
}

func (r *PayoutRepository) transition(ctx context.Context, q repository.DBExecutor, id int64, to, query string, args ...interface{}) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark payout %d %s: %w", id, to, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after marking payout %d %s: %w", id, to, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("mark payout %d %s: %w", id, to, util.ErrNotFound)
	}
	return nil
}
