// internal/service/settlement_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coinflip-settlement/internal/cache"
	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/ledger"
	"coinflip-settlement/internal/metrics"
	"coinflip-settlement/internal/repository"
	"coinflip-settlement/internal/util"
	"coinflip-settlement/pkg/db"
	"coinflip-settlement/pkg/lock"
)

// SettleRequest is a caller's claim that a deposit was made on a side.
type SettleRequest struct {
	DepositReference string
	ChosenSide       domain.Side
}

// ResultCache holds settled results keyed by deposit reference.
type ResultCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, depositReference string) (*domain.SettlementResult, error)
	Set(ctx context.Context, res *domain.SettlementResult) error
}

// SettlementService settles deposits into wagers.
type SettlementService interface {
	// Settle verifies the deposit, resolves the flip, records the wager and pays a winner.
	// A deposit that was already settled returns its original result together with
	// util.ErrDuplicateDeposit.
	Settle(ctx context.Context, req SettleRequest) (*domain.SettlementResult, error)
}

// SettlementDeps groups the collaborators of the settlement service.
type SettlementDeps struct {
	DBBeginner  db.DBTxBeginner
	DBExecutor  repository.DBExecutor
	AccountRepo repository.AccountRepository
	WagerRepo   repository.WagerRepository
	Verifier    DepositVerifier
	Resolver    OutcomeResolver
	Disburser   PayoutDisburser
	Locker      lock.Locker
	Cache       ResultCache
	Events      EventPublisher
	BeginTx     db.BeginTxFunc
	CommitTx    db.CommitTxFunc
	RollbackTx  db.RollbackTxFunc
	Logger      *zap.Logger
}

// settlementService implements the SettlementService interface.
type settlementService struct {
	SettlementDeps
}

// NewSettlementService creates a new instance of SettlementService.
func NewSettlementService(deps SettlementDeps) SettlementService {
	return &settlementService{SettlementDeps: deps}
}

// Settle runs verification, resolution, persistence and payout in that order under the deposit lock.
func (s *settlementService) Settle(ctx context.Context, req SettleRequest) (res *domain.SettlementResult, err error) {
	started := time.Now()
	defer func() { metrics.RecordSettlement(settlementResultLabel(res, err), started) }()

	if req.DepositReference == "" || !ledger.ValidSignature(req.DepositReference) {
		return nil, fmt.Errorf("settle: deposit reference must be a transaction signature: %w", util.ErrInvalidInput)
	}
	if !req.ChosenSide.Valid() {
		return nil, fmt.Errorf("settle: chosen side must be A or B: %w", util.ErrInvalidInput)
	}
	log := s.Logger.With(zap.String("deposit_reference", req.DepositReference))

	if cached, err := s.Cache.Get(ctx, req.DepositReference); err != nil {
		log.Warn("result cache read failed", zap.Error(err))
	} else if cached != nil {
		log.Info("deposit already settled", zap.String("source", "cache"), zap.Bool("won", cached.Won))
		return cached, util.ErrDuplicateDeposit
	}

	held, err := s.Locker.Acquire(ctx, cache.LockKey(req.DepositReference))
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, fmt.Errorf("settle %s: %w", req.DepositReference, util.ErrSettlementInProgress)
		}
		return nil, fmt.Errorf("settle %s: failed to acquire lock: %w", req.DepositReference, err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release deposit lock", zap.Error(err))
		}
	}()

	if existing, err := s.existing(ctx, req.DepositReference); err != nil || existing != nil {
		return existing, err
	}

	deposit, err := s.Verifier.Verify(ctx, req.DepositReference)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	account, err := s.AccountRepo.GetAccountByAddress(ctx, s.DBExecutor, deposit.PayerAddress)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, fmt.Errorf("settle %s: payer %s: %w", req.DepositReference, deposit.PayerAddress, util.ErrUnknownAccount)
		}
		return nil, fmt.Errorf("settle %s: failed to load account: %w", req.DepositReference, err)
	}

	outcome, err := s.Resolver.Resolve(req.DepositReference)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	wager := domain.NewPendingWager(req.DepositReference, account.ID, deposit.PayerAddress, deposit.Amount, req.ChosenSide)
	payoutAmount, fee := s.Disburser.PayoutAmount(deposit.Amount)
	wager.Settle(outcome.Side, outcome.Seed, payoutAmount, fee)

	var payout *domain.Payout
	if wager.Won() && wager.PayoutAmount > 0 {
		payout = domain.NewPayout(wager)
	}

	if err := s.record(ctx, wager, payout); err != nil {
		if util.IsError(err, util.ErrDuplicateDeposit) {
			return s.existing(ctx, req.DepositReference)
		}
		return nil, err
	}
	log.Info("wager settled",
		zap.String("wager_id", wager.ID),
		zap.String("payer", wager.PayerAddress),
		zap.Int64("wager_lamports", int64(wager.WagerAmount)),
		zap.String("chosen_side", string(wager.ChosenSide)),
		zap.String("outcome_side", string(wager.OutcomeSide)),
		zap.String("status", string(wager.Status)))

	// The wager is committed; a caller hanging up must not strand its payout.
	ctx = context.WithoutCancel(ctx)

	var payoutStatus *domain.PayoutStatus
	if payout != nil {
		if err := s.Disburser.Disburse(ctx, payout); err != nil {
			// The win stands; the payout worker retries from the stored row.
			log.Error("payout failed, left for retry",
				zap.String("wager_id", wager.ID),
				zap.Int64("payout_id", payout.ID),
				zap.Error(err))
		}
		status := payout.Status
		payoutStatus = &status
	}

	res = domain.NewSettlementResult(wager, payoutStatus)
	if err := s.Cache.Set(ctx, res); err != nil {
		log.Warn("result cache write failed", zap.Error(err))
	}
	if err := s.Events.PublishWagerSettled(ctx, res); err != nil {
		log.Warn("failed to publish settlement event", zap.Error(err))
	}
	metrics.RecordWagered(string(wager.Status), int64(wager.WagerAmount))
	return res, nil
}

// existing returns the stored result for a settled deposit together with
// util.ErrDuplicateDeposit, or nil, nil when the deposit is new.
func (s *settlementService) existing(ctx context.Context, depositReference string) (*domain.SettlementResult, error) {
	view, err := s.WagerRepo.GetByDepositReference(ctx, s.DBExecutor, depositReference)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("settle %s: failed to check existing wager: %w", depositReference, err)
	}
	res := domain.NewSettlementResult(&view.Wager, view.PayoutStatus)
	s.Logger.Info("deposit already settled",
		zap.String("deposit_reference", depositReference),
		zap.String("source", "ledger"),
		zap.Bool("won", res.Won))
	if err := s.Cache.Set(ctx, res); err != nil {
		s.Logger.Warn("result cache write failed", zap.String("deposit_reference", depositReference), zap.Error(err))
	}
	return res, util.ErrDuplicateDeposit
}

// record writes the wager and its payout in one transaction.
func (s *settlementService) record(ctx context.Context, wager *domain.Wager, payout *domain.Payout) error {
	txController, err := s.BeginTx(ctx, s.DBBeginner)
	if err != nil {
		return fmt.Errorf("settle: failed to begin transaction: %w", err)
	}
	defer s.RollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return fmt.Errorf("settle: transaction controller does not implement DBExecutor")
	}

	if err := s.WagerRepo.RecordSettlement(ctx, txExecutor, wager, payout); err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	if err := s.CommitTx(txController); err != nil {
		return fmt.Errorf("settle: failed to commit transaction: %w", err)
	}
	return nil
}

func settlementResultLabel(res *domain.SettlementResult, err error) string {
	switch {
	case err == nil && res != nil && res.Won:
		return metrics.ResultWon
	case err == nil:
		return metrics.ResultLost
	case util.IsError(err, util.ErrDuplicateDeposit):
		return metrics.ResultDuplicate
	case util.IsError(err, util.ErrSettlementInProgress):
		return metrics.ResultInProgress
	case util.IsError(err, util.ErrDepositNotFound):
		return metrics.ResultDepositMissing
	case util.IsError(err, util.ErrInvalidDeposit):
		return metrics.ResultInvalidDeposit
	case util.IsError(err, util.ErrUnknownAccount):
		return metrics.ResultUnknownAccount
	case util.IsError(err, util.ErrInvalidInput):
		return metrics.ResultInvalidInput
	default:
		return metrics.ResultError
	}
}
