// internal/util/errors.go
package util

import "errors"

// Common application-specific errors.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input provided")

	// Settlement errors surfaced to callers.
	ErrDepositNotFound      = errors.New("deposit transaction not found")
	ErrInvalidDeposit       = errors.New("transaction is not a valid deposit to the custodial account")
	ErrUnknownAccount       = errors.New("no registered account for payer address, connect the wallet first")
	ErrDuplicateDeposit     = errors.New("deposit already settled")
	ErrSettlementInProgress = errors.New("deposit settlement already in progress")

	// ErrPayoutFailed marks a won wager whose transfer could not be submitted.
	// It never reaches the HTTP caller; the payout worker retries it.
	ErrPayoutFailed = errors.New("payout submission failed")
)

// IsError reports whether err matches target anywhere in its chain.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}
