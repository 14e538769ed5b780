// internal/service/payout_disburser.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/ledger"
	"coinflip-settlement/internal/metrics"
	"coinflip-settlement/internal/repository"
	"coinflip-settlement/internal/util"
)

// ErrPayoutNotSendable means another attempt already moved the payout out of PENDING/FAILED.
var ErrPayoutNotSendable = errors.New("payout is not in a sendable state")

// ErrPayoutMoved means the stored payout no longer carries the signature being tracked.
var ErrPayoutMoved = errors.New("payout moved on since it was read")

var hundred = decimal.NewFromInt(100)

// EventPublisher receives settlement and payout events.
type EventPublisher interface {
	PublishWagerSettled(ctx context.Context, res *domain.SettlementResult) error
	PublishPayoutUpdated(ctx context.Context, payout *domain.Payout) error
}

// PayoutDisburser computes, submits and tracks payouts to winners.
type PayoutDisburser interface {
	// PayoutAmount splits a wager into the winner's payout and the platform fee.
	PayoutAmount(wager domain.Lamports) (payout, fee domain.Lamports)
	// Disburse sends a PENDING or FAILED payout. Submission failures wrap util.ErrPayoutFailed.
	Disburse(ctx context.Context, payout *domain.Payout) error
	// Track resolves the finality of a SUBMITTED payout and returns its new status.
	// It returns ErrPayoutMoved when the stored row was resubmitted or settled meanwhile.
	Track(ctx context.Context, payout *domain.Payout) (domain.PayoutStatus, error)
	// Abandon stops retrying a FAILED payout.
	Abandon(ctx context.Context, payout *domain.Payout, reason string) error
}

// payoutDisburser implements the PayoutDisburser interface.
type payoutDisburser struct {
	dbExecutor repository.DBExecutor
	payoutRepo repository.PayoutRepository
	ledger     ledger.Client
	events     EventPublisher
	feePercent decimal.Decimal
	expiry     time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewPayoutDisburser creates a new PayoutDisburser. A submitted transfer not
// visible on the ledger after expiry is treated as dropped.
func NewPayoutDisburser(
	dbExecutor repository.DBExecutor,
	payoutRepo repository.PayoutRepository,
	client ledger.Client,
	events EventPublisher,
	feePercent decimal.Decimal,
	expiry time.Duration,
	logger *zap.Logger,
) PayoutDisburser {
	return &payoutDisburser{
		dbExecutor: dbExecutor,
		payoutRepo: payoutRepo,
		ledger:     client,
		events:     events,
		feePercent: feePercent,
		expiry:     expiry,
		logger:     logger,
		now:        time.Now,
	}
}

// PayoutAmount returns floor(wager * (100 - fee%) / 100); the remainder is the fee.
func (d *payoutDisburser) PayoutAmount(wager domain.Lamports) (domain.Lamports, domain.Lamports) {
	if wager <= 0 {
		return 0, 0
	}
	payout := decimal.NewFromInt(int64(wager)).
		Mul(hundred.Sub(d.feePercent)).
		Div(hundred).
		Floor().
		IntPart()
	return domain.Lamports(payout), wager - domain.Lamports(payout)
}

// Disburse signs the transfer, records its signature, then broadcasts it.
func (d *payoutDisburser) Disburse(ctx context.Context, p *domain.Payout) error {
	if !p.Sendable() {
		return fmt.Errorf("disburse payout %d: status %s: %w", p.ID, p.Status, ErrPayoutNotSendable)
	}
	log := d.logger.With(
		zap.String("deposit_reference", p.DepositReference),
		zap.Int64("payout_id", p.ID),
		zap.Int64("lamports", int64(p.Amount)),
	)

	prepared, err := d.ledger.PrepareTransfer(ctx, p.RecipientAddress, uint64(p.Amount))
	if err != nil {
		if markErr := d.markFailed(ctx, p, err.Error()); markErr != nil {
			log.Error("failed to record payout failure", zap.Error(markErr))
		}
		return fmt.Errorf("disburse payout %d: %v: %w", p.ID, err, util.ErrPayoutFailed)
	}

	// The signature is stored before broadcast so a crash can never lead to a second send.
	submittedAt := d.now().UTC()
	if err := d.payoutRepo.MarkSubmitted(ctx, d.dbExecutor, p.ID, prepared.Signature, submittedAt); err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return fmt.Errorf("disburse payout %d: %w", p.ID, ErrPayoutNotSendable)
		}
		return fmt.Errorf("disburse payout %d: failed to record submission: %w", p.ID, err)
	}
	p.Status = domain.PayoutStatusSubmitted
	p.Signature = &prepared.Signature
	p.SubmittedAt = &submittedAt
	p.Attempts++
	p.LastError = nil

	err = d.ledger.SendTransfer(ctx, prepared)
	switch {
	case err == nil:
		log.Info("payout submitted", zap.String("signature", prepared.Signature), zap.Int("attempt", p.Attempts))
		d.transitioned(ctx, p)
		return nil
	case errors.Is(err, ledger.ErrTransferOutcomeUnknown):
		// Left SUBMITTED; Track settles it by signature.
		log.Warn("payout broadcast outcome unknown", zap.String("signature", prepared.Signature), zap.Error(err))
		d.transitioned(ctx, p)
		return nil
	default:
		if markErr := d.markFailed(ctx, p, err.Error()); markErr != nil {
			log.Error("failed to record payout failure", zap.Error(markErr))
		}
		return fmt.Errorf("disburse payout %d: %v: %w", p.ID, err, util.ErrPayoutFailed)
	}
}

// Track checks the signature of a submitted payout.
func (d *payoutDisburser) Track(ctx context.Context, p *domain.Payout) (domain.PayoutStatus, error) {
	if p.Status != domain.PayoutStatusSubmitted || p.Signature == nil {
		return p.Status, fmt.Errorf("track payout %d: status %s: %w", p.ID, p.Status, util.ErrInvalidInput)
	}

	st, err := d.ledger.SignatureStatus(ctx, *p.Signature)
	if err != nil {
		return p.Status, fmt.Errorf("track payout %d: %w", p.ID, err)
	}

	switch {
	case st == nil:
		if p.SubmittedAt == nil || d.now().Sub(*p.SubmittedAt) < d.expiry {
			return p.Status, nil
		}
		if err := d.markFailed(ctx, p, fmt.Sprintf("signature %s not found after %s", *p.Signature, d.expiry)); err != nil {
			return p.Status, d.trackErr(p, err)
		}
	case st.Failed:
		if err := d.markFailed(ctx, p, "transaction failed on chain: "+st.Error); err != nil {
			return p.Status, d.trackErr(p, err)
		}
	case st.Confirmed():
		if err := d.payoutRepo.MarkConfirmed(ctx, d.dbExecutor, p.ID, *p.Signature); err != nil {
			return p.Status, d.trackErr(p, err)
		}
		p.Status = domain.PayoutStatusConfirmed
		p.LastError = nil
		d.logger.Info("payout confirmed",
			zap.String("deposit_reference", p.DepositReference),
			zap.Int64("payout_id", p.ID),
			zap.String("signature", *p.Signature))
		d.transitioned(ctx, p)
	}
	return p.Status, nil
}

// Abandon marks a failed payout for manual reconciliation.
func (d *payoutDisburser) Abandon(ctx context.Context, p *domain.Payout, reason string) error {
	if err := d.payoutRepo.MarkAbandoned(ctx, d.dbExecutor, p.ID, reason); err != nil {
		return fmt.Errorf("abandon payout %d: %w", p.ID, err)
	}
	p.Status = domain.PayoutStatusAbandoned
	p.LastError = &reason
	d.transitioned(ctx, p)
	return nil
}

func (d *payoutDisburser) trackErr(p *domain.Payout, err error) error {
	if util.IsError(err, util.ErrNotFound) {
		return fmt.Errorf("track payout %d: signature %s: %w", p.ID, *p.Signature, ErrPayoutMoved)
	}
	return fmt.Errorf("track payout %d: %w", p.ID, err)
}

// markFailed moves the payout to FAILED in storage and in memory. A submitted
// payout only fails while the stored signature is still the one in memory.
func (d *payoutDisburser) markFailed(ctx context.Context, p *domain.Payout, reason string) error {
	if p.Status == domain.PayoutStatusSubmitted && p.Signature != nil {
		if err := d.payoutRepo.MarkSubmissionFailed(ctx, d.dbExecutor, p.ID, *p.Signature, reason); err != nil {
			return err
		}
	} else {
		if err := d.payoutRepo.MarkFailed(ctx, d.dbExecutor, p.ID, reason); err != nil {
			return err
		}
		p.Attempts++
	}
	p.Status = domain.PayoutStatusFailed
	p.LastError = &reason
	d.logger.Warn("payout failed",
		zap.String("deposit_reference", p.DepositReference),
		zap.Int64("payout_id", p.ID),
		zap.Int("attempts", p.Attempts),
		zap.String("reason", reason))
	d.transitioned(ctx, p)
	return nil
}

func (d *payoutDisburser) transitioned(ctx context.Context, p *domain.Payout) {
	metrics.RecordPayoutTransition(string(p.Status))
	if err := d.events.PublishPayoutUpdated(ctx, p); err != nil {
		d.logger.Warn("failed to publish payout event",
			zap.String("deposit_reference", p.DepositReference),
			zap.Int64("payout_id", p.ID),
			zap.Error(err))
	}
}
