// internal/repository/payout_repo.go
package repository

import (
	"context"
	"time"

	"coinflip-settlement/internal/domain"
)

// PayoutRepository defines the payout state transitions.
// Every Mark method only applies from the states its transition allows and
// returns util.ErrNotFound when the row is not in one of them.
type PayoutRepository interface {
	// GetPayoutByID retrieves a payout by its ID.
	GetPayoutByID(ctx context.Context, q DBExecutor, id int64) (*domain.Payout, error)
	// ListPayoutsByStatus returns up to limit payouts in status, least recently updated first.
	ListPayoutsByStatus(ctx context.Context, q DBExecutor, status domain.PayoutStatus, limit int) ([]domain.Payout, error)
	// MarkSubmitted records a broadcast: PENDING/FAILED -> SUBMITTED, counting one attempt.
	MarkSubmitted(ctx context.Context, q DBExecutor, id int64, signature string, submittedAt time.Time) error
	// MarkFailed records a failure before broadcast: PENDING/FAILED -> FAILED, counting one attempt.
	MarkFailed(ctx context.Context, q DBExecutor, id int64, reason string) error
	// MarkSubmissionFailed records that the broadcast with signature cannot land: SUBMITTED -> FAILED.
	// It only applies while signature is still the row's current signature.
	MarkSubmissionFailed(ctx context.Context, q DBExecutor, id int64, signature, reason string) error
	// MarkConfirmed records finality of signature: SUBMITTED -> CONFIRMED.
	MarkConfirmed(ctx context.Context, q DBExecutor, id int64, signature string) error
	// MarkAbandoned gives up on retries: FAILED -> ABANDONED.
	MarkAbandoned(ctx context.Context, q DBExecutor, id int64, reason string) error
}
