// internal/service/payout_worker.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"coinflip-settlement/internal/cache"
	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/repository"
	"coinflip-settlement/internal/util"
	"coinflip-settlement/pkg/lock"
)

// PayoutWorker drives payouts that left the request path unfinished:
// it tracks SUBMITTED transfers and re-sends PENDING or FAILED ones.
type PayoutWorker struct {
	dbExecutor  repository.DBExecutor
	payoutRepo  repository.PayoutRepository
	disburser   PayoutDisburser
	locker      lock.Locker
	interval    time.Duration
	maxAttempts int
	batchSize   int
	logger      *zap.Logger
}

// NewPayoutWorker creates a new PayoutWorker.
func NewPayoutWorker(
	dbExecutor repository.DBExecutor,
	payoutRepo repository.PayoutRepository,
	disburser PayoutDisburser,
	locker lock.Locker,
	interval time.Duration,
	maxAttempts int,
	batchSize int,
	logger *zap.Logger,
) *PayoutWorker {
	return &PayoutWorker{
		dbExecutor:  dbExecutor,
		payoutRepo:  payoutRepo,
		disburser:   disburser,
		locker:      locker,
		interval:    interval,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Start runs the worker until ctx is cancelled.
func (w *PayoutWorker) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info("payout worker started", zap.Duration("interval", w.interval))
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("payout worker stopped")
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce processes one batch of each payout status the worker owns.
func (w *PayoutWorker) RunOnce(ctx context.Context) {
	w.trackSubmitted(ctx)
	w.resend(ctx, domain.PayoutStatusPending)
	w.resend(ctx, domain.PayoutStatusFailed)
}

func (w *PayoutWorker) trackSubmitted(ctx context.Context) {
	payouts, err := w.payoutRepo.ListPayoutsByStatus(ctx, w.dbExecutor, domain.PayoutStatusSubmitted, w.batchSize)
	if err != nil {
		w.logger.Warn("payout worker: list submitted failed", zap.Error(err))
		return
	}
	for i := range payouts {
		if ctx.Err() != nil {
			return
		}
		p := &payouts[i]
		if _, err := w.disburser.Track(ctx, p); err != nil {
			if errors.Is(err, ErrPayoutMoved) {
				w.logger.Debug("payout worker: payout moved since listing",
					zap.String("deposit_reference", p.DepositReference),
					zap.Int64("payout_id", p.ID))
				continue
			}
			w.logger.Warn("payout worker: track failed",
				zap.String("deposit_reference", p.DepositReference),
				zap.Int64("payout_id", p.ID),
				zap.Error(err))
		}
	}
}

func (w *PayoutWorker) resend(ctx context.Context, status domain.PayoutStatus) {
	payouts, err := w.payoutRepo.ListPayoutsByStatus(ctx, w.dbExecutor, status, w.batchSize)
	if err != nil {
		w.logger.Warn("payout worker: list payouts failed", zap.String("status", string(status)), zap.Error(err))
		return
	}
	for i := range payouts {
		if ctx.Err() != nil {
			return
		}
		if err := w.retry(ctx, payouts[i].ID, payouts[i].DepositReference); err != nil {
			w.logger.Warn("payout worker: retry failed",
				zap.String("deposit_reference", payouts[i].DepositReference),
				zap.Int64("payout_id", payouts[i].ID),
				zap.Error(err))
		}
	}
}

// retry re-sends one payout under its deposit lock, so it never races the settlement that created it.
func (w *PayoutWorker) retry(ctx context.Context, payoutID int64, depositReference string) error {
	held, err := w.locker.Acquire(ctx, cache.LockKey(depositReference))
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			w.logger.Warn("payout worker: failed to release lock", zap.String("deposit_reference", depositReference), zap.Error(err))
		}
	}()

	// Re-read under the lock; the row may have moved since it was listed.
	p, err := w.payoutRepo.GetPayoutByID(ctx, w.dbExecutor, payoutID)
	if err != nil {
		return err
	}
	if !p.Sendable() {
		return nil
	}

	if p.Attempts >= w.maxAttempts {
		if p.Status != domain.PayoutStatusFailed {
			return nil
		}
		reason := fmt.Sprintf("gave up after %d attempts", p.Attempts)
		if p.LastError != nil {
			reason += ": " + *p.LastError
		}
		if err := w.disburser.Abandon(ctx, p, reason); err != nil {
			return err
		}
		w.logger.Error("payout abandoned, manual reconciliation required",
			zap.String("deposit_reference", p.DepositReference),
			zap.Int64("payout_id", p.ID),
			zap.String("recipient", p.RecipientAddress),
			zap.Int64("lamports", int64(p.Amount)),
			zap.Int("attempts", p.Attempts))
		return nil
	}

	err = w.disburser.Disburse(ctx, p)
	if err != nil && (errors.Is(err, ErrPayoutNotSendable) || util.IsError(err, util.ErrPayoutFailed)) {
		// Already recorded by the disburser.
		return nil
	}
	return err
}
