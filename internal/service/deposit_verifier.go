// internal/service/deposit_verifier.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coinflip-settlement/internal/domain"
	"coinflip-settlement/internal/ledger"
	"coinflip-settlement/internal/metrics"
	"coinflip-settlement/internal/util"
)

// VerifiedDeposit is a confirmed transfer into the custodial account.
type VerifiedDeposit struct {
	Reference    string
	PayerAddress string          // First account key, the fee payer and signer
	Amount       domain.Lamports // Debited from the payer, network fee included
	Slot         uint64
	BlockTime    *time.Time
}

// DepositVerifier confirms that a claimed deposit landed and measures it.
type DepositVerifier interface {
	Verify(ctx context.Context, reference string) (*VerifiedDeposit, error)
}

// depositVerifier implements the DepositVerifier interface.
type depositVerifier struct {
	ledger   ledger.Client
	attempts int
	interval time.Duration
	logger   *zap.Logger
}

// NewDepositVerifier creates a verifier polling the ledger up to attempts times, interval apart.
func NewDepositVerifier(client ledger.Client, attempts int, interval time.Duration, logger *zap.Logger) DepositVerifier {
	if attempts < 1 {
		attempts = 1
	}
	return &depositVerifier{
		ledger:   client,
		attempts: attempts,
		interval: interval,
		logger:   logger,
	}
}

// Verify polls for the transaction and checks it moved funds into custody.
func (v *depositVerifier) Verify(ctx context.Context, reference string) (*VerifiedDeposit, error) {
	rec, err := v.poll(ctx, reference)
	if err != nil {
		return nil, err
	}

	if rec.Failed {
		return nil, fmt.Errorf("verify %s: transaction failed on chain: %w", reference, util.ErrInvalidDeposit)
	}
	if len(rec.AccountKeys) == 0 {
		return nil, fmt.Errorf("verify %s: transaction has no accounts: %w", reference, util.ErrInvalidDeposit)
	}

	payerDelta, ok := rec.BalanceDelta(0)
	if !ok || payerDelta >= 0 {
		return nil, fmt.Errorf("verify %s: payer balance did not decrease: %w", reference, util.ErrInvalidDeposit)
	}
	amount := -payerDelta

	custody := rec.IndexOf(v.ledger.CustodialAddress())
	if custody <= 0 {
		return nil, fmt.Errorf("verify %s: custodial account not credited: %w", reference, util.ErrInvalidDeposit)
	}
	credited, ok := rec.BalanceDelta(custody)
	if !ok || credited < amount-int64(rec.Fee) || credited <= 0 {
		return nil, fmt.Errorf("verify %s: custodial account credited %d of %d lamports: %w", reference, credited, amount, util.ErrInvalidDeposit)
	}

	return &VerifiedDeposit{
		Reference:    reference,
		PayerAddress: rec.AccountKeys[0],
		Amount:       domain.Lamports(amount),
		Slot:         rec.Slot,
		BlockTime:    rec.BlockTime,
	}, nil
}

// poll fetches the transaction until it is found, the attempts run out or ctx ends.
func (v *depositVerifier) poll(ctx context.Context, reference string) (*ledger.TransactionRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= v.attempts; attempt++ {
		rec, err := v.ledger.FetchTransaction(ctx, reference)
		if err == nil {
			metrics.RecordDepositPoll(attempt)
			return rec, nil
		}

		var rpcErr *ledger.RPCError
		if errors.As(err, &rpcErr) || errors.Is(err, ledger.ErrInvalidReference) {
			// The node rejected the reference itself; polling again cannot help.
			return nil, fmt.Errorf("verify %s: %v: %w", reference, err, util.ErrInvalidDeposit)
		}
		if !errors.Is(err, ledger.ErrTransactionNotFound) {
			v.logger.Warn("deposit lookup failed",
				zap.String("deposit_reference", reference),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		lastErr = err

		if attempt == v.attempts {
			break
		}
		timer := time.NewTimer(v.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("verify %s: %w", reference, ctx.Err())
		case <-timer.C:
		}
	}
	metrics.RecordDepositPoll(v.attempts)

	if errors.Is(lastErr, ledger.ErrTransactionNotFound) {
		return nil, fmt.Errorf("verify %s: not found after %d attempts: %w", reference, v.attempts, util.ErrDepositNotFound)
	}
	return nil, fmt.Errorf("verify %s: ledger unavailable: %w", reference, lastErr)
}
