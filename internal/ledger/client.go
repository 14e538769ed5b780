// internal/ledger/client.go
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrTransactionNotFound means the network has no confirmed record of the signature yet.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidReference means the reference is not a well-formed transaction signature.
	ErrInvalidReference = errors.New("invalid transaction reference")
	// ErrTransferNotSubmitted means the transfer was not accepted by the network
	// and cannot land. Retrying with a fresh transaction is safe.
	ErrTransferNotSubmitted = errors.New("transfer not submitted")
	// ErrTransferOutcomeUnknown means the transfer may have been broadcast.
	// It must be tracked by signature, never re-sent blindly.
	ErrTransferOutcomeUnknown = errors.New("transfer outcome unknown")
)

// Client queries and submits transactions against the ledger network.
type Client interface {
	// FetchTransaction returns the confirmed record for reference, or ErrTransactionNotFound.
	FetchTransaction(ctx context.Context, reference string) (*TransactionRecord, error)
	// PrepareTransfer builds and signs a transfer of lamports from the custodial
	// account to address against a fresh blockhash. Nothing is broadcast, so the
	// signature can be recorded before the transfer is sent.
	PrepareTransfer(ctx context.Context, to string, lamports uint64) (*PreparedTransfer, error)
	// SendTransfer broadcasts a prepared transfer. It returns ErrTransferNotSubmitted
	// when the node refused it and ErrTransferOutcomeUnknown when the result is unknown.
	SendTransfer(ctx context.Context, transfer *PreparedTransfer) error
	// SignatureStatus returns the status of a submitted signature, nil when unknown to the network.
	SignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error)
	// CustodialAddress is the base58 address of the platform account.
	CustodialAddress() string
}

// TransactionRecord is the subset of a confirmed transaction needed to verify a deposit.
type TransactionRecord struct {
	Signature    string
	Slot         uint64
	BlockTime    *time.Time
	AccountKeys  []string // Static keys followed by loaded writable and readonly addresses
	PreBalances  []uint64
	PostBalances []uint64
	Fee          uint64
	Failed       bool // The transaction landed but its execution returned an error
}

// BalanceDelta returns post - pre for the account at index i.
func (r *TransactionRecord) BalanceDelta(i int) (int64, bool) {
	if i < 0 || i >= len(r.PreBalances) || i >= len(r.PostBalances) {
		return 0, false
	}
	return int64(r.PostBalances[i]) - int64(r.PreBalances[i]), true
}

// IndexOf returns the account index of address, or -1.
func (r *TransactionRecord) IndexOf(address string) int {
	for i, k := range r.AccountKeys {
		if k == address {
			return i
		}
	}
	return -1
}

// PreparedTransfer is a signed transfer ready to broadcast.
type PreparedTransfer struct {
	Signature            string // base58, identifies the transfer on the network
	Recipient            string
	Lamports             uint64
	Blockhash            string
	LastValidBlockHeight uint64
	PreparedAt           time.Time
	Raw                  []byte // Wire-format signed transaction

	tx *solana.Transaction
}

// Commitment levels reported by the network.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// SignatureStatus reports how far a submitted transaction has progressed.
type SignatureStatus struct {
	Slot               uint64
	ConfirmationStatus string
	Failed             bool
	Error              string
}

// Confirmed reports whether the transaction reached at least confirmed commitment.
func (s *SignatureStatus) Confirmed() bool {
	return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
}
