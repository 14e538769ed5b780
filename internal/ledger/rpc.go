// internal/ledger/rpc.go
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// RPCClient implements Client over the ledger's JSON-RPC HTTP API.
type RPCClient struct {
	rpc        *rpc.Client
	custodian  *Keypair
	commitment rpc.CommitmentType
	now        func() time.Time
}

// NewRPCClient creates a client for endpoint signing payouts with custodian.
func NewRPCClient(endpoint string, custodian *Keypair, timeout time.Duration) *RPCClient {
	transport := jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{
		HTTPClient: &http.Client{Timeout: timeout},
	})
	return &RPCClient{
		rpc:        rpc.NewWithCustomRPCClient(transport),
		custodian:  custodian,
		commitment: rpc.CommitmentConfirmed,
		now:        time.Now,
	}
}

// CustodialAddress implements Client.
func (c *RPCClient) CustodialAddress() string {
	return c.custodian.Address()
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// nodeError wraps err for method, lifting a node-side error object into *RPCError
// so callers can tell a refusal from a transport failure.
func nodeError(method string, err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s: %w", method, &RPCError{Code: rpcErr.Code, Message: rpcErr.Message, Data: rpcErr.Data})
	}
	return fmt.Errorf("%s: %w", method, err)
}

// FetchTransaction implements Client.
func (c *RPCClient) FetchTransaction(ctx context.Context, reference string) (*TransactionRecord, error) {
	sig, err := solana.SignatureFromBase58(reference)
	if err != nil {
		return nil, fmt.Errorf("getTransaction %q: %v: %w", reference, err, ErrInvalidReference)
	}

	maxVersion := uint64(0)
	res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, nodeError("getTransaction", err)
	}
	if res.Meta == nil || res.Transaction == nil {
		return nil, ErrTransactionNotFound
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("getTransaction: failed to decode transaction: %w", err)
	}

	keys := make([]string, 0, len(tx.Message.AccountKeys)+len(res.Meta.LoadedAddresses.Writable)+len(res.Meta.LoadedAddresses.ReadOnly))
	for _, set := range []solana.PublicKeySlice{tx.Message.AccountKeys, res.Meta.LoadedAddresses.Writable, res.Meta.LoadedAddresses.ReadOnly} {
		for _, k := range set {
			keys = append(keys, k.String())
		}
	}

	rec := &TransactionRecord{
		Signature:    reference,
		Slot:         res.Slot,
		AccountKeys:  keys,
		PreBalances:  res.Meta.PreBalances,
		PostBalances: res.Meta.PostBalances,
		Fee:          res.Meta.Fee,
		Failed:       res.Meta.Err != nil,
	}
	if res.BlockTime != nil {
		t := time.Unix(int64(*res.BlockTime), 0).UTC()
		rec.BlockTime = &t
	}
	return rec, nil
}

// PrepareTransfer implements Client.
func (c *RPCClient) PrepareTransfer(ctx context.Context, to string, lamports uint64) (*PreparedTransfer, error) {
	recipient, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid recipient %q: %v", ErrTransferNotSubmitted, to, err)
	}

	bh, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferNotSubmitted, nodeError("getLatestBlockhash", err))
	}
	if bh == nil || bh.Value == nil || bh.Value.Blockhash == (solana.Hash{}) {
		return nil, fmt.Errorf("%w: empty blockhash", ErrTransferNotSubmitted)
	}

	payer := c.custodian.PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, payer, recipient).Build()},
		bh.Value.Blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build transfer: %v", ErrTransferNotSubmitted, err)
	}
	if _, err := tx.Sign(c.custodian.signer); err != nil {
		return nil, fmt.Errorf("%w: failed to sign transfer: %v", ErrTransferNotSubmitted, err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode transfer: %v", ErrTransferNotSubmitted, err)
	}

	return &PreparedTransfer{
		Signature:            tx.Signatures[0].String(),
		Recipient:            to,
		Lamports:             lamports,
		Blockhash:            bh.Value.Blockhash.String(),
		LastValidBlockHeight: bh.Value.LastValidBlockHeight,
		PreparedAt:           c.now().UTC(),
		Raw:                  raw,
		tx:                   tx,
	}, nil
}

// SendTransfer implements Client.
func (c *RPCClient) SendTransfer(ctx context.Context, transfer *PreparedTransfer) error {
	if transfer.tx == nil {
		return fmt.Errorf("%w: transfer %s was not prepared by this client", ErrTransferNotSubmitted, transfer.Signature)
	}

	returned, err := c.rpc.SendTransactionWithOpts(ctx, transfer.tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		err = nodeError("sendTransaction", err)
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			// The node refused the transaction during preflight.
			return fmt.Errorf("%w: %v", ErrTransferNotSubmitted, err)
		}
		return fmt.Errorf("%w: %v", ErrTransferOutcomeUnknown, err)
	}
	if returned != (solana.Signature{}) && returned.String() != transfer.Signature {
		return fmt.Errorf("%w: node returned signature %s, expected %s", ErrTransferOutcomeUnknown, returned, transfer.Signature)
	}
	return nil
}

// SignatureStatus implements Client.
func (c *RPCClient) SignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses %q: %v: %w", signature, err, ErrInvalidReference)
	}

	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, nodeError("getSignatureStatuses", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return nil, nil
	}
	v := res.Value[0]
	st := &SignatureStatus{Slot: v.Slot, ConfirmationStatus: string(v.ConfirmationStatus)}
	if v.Err != nil {
		st.Failed = true
		if b, err := json.Marshal(v.Err); err == nil {
			st.Error = string(b)
		} else {
			st.Error = fmt.Sprint(v.Err)
		}
	}
	return st, nil
}
