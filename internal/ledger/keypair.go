// internal/ledger/keypair.go
package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Keypair is the custodial signing key with its base58 address.
type Keypair struct {
	private solana.PrivateKey
}

// ParseKeypair decodes a 64-byte secret key given either as base58 or as the
// JSON byte array written by solana-keygen.
func ParseKeypair(secret string) (*Keypair, error) {
	secret = strings.TrimSpace(secret)

	var priv solana.PrivateKey
	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, fmt.Errorf("parse keypair: %w", err)
		}
		priv = make(solana.PrivateKey, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("parse keypair: byte %d out of range", i)
			}
			priv[i] = byte(v)
		}
	} else {
		decoded, err := solana.PrivateKeyFromBase58(secret)
		if err != nil {
			return nil, fmt.Errorf("parse keypair: %w", err)
		}
		priv = decoded
	}

	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("parse keypair: expected %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	// The trailing 32 bytes must be the public key derived from the seed.
	derived := ed25519.NewKeyFromSeed(priv[:ed25519.SeedSize])
	if !bytes.Equal(derived, priv) {
		return nil, fmt.Errorf("parse keypair: public key does not match secret")
	}
	return NewKeypair(priv), nil
}

// NewKeypair wraps a private key.
func NewKeypair(priv solana.PrivateKey) *Keypair {
	return &Keypair{private: priv}
}

// Address returns the base58 public key.
func (k *Keypair) Address() string { return k.PublicKey().String() }

// PublicKey returns the account key.
func (k *Keypair) PublicKey() solana.PublicKey { return k.private.PublicKey() }

// signer hands the private key to solana.Transaction.Sign for the custodial account only.
func (k *Keypair) signer(key solana.PublicKey) *solana.PrivateKey {
	if key.Equals(k.PublicKey()) {
		return &k.private
	}
	return nil
}

// ValidAddress reports whether address is a well-formed account address.
func ValidAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// ValidSignature reports whether s is a well-formed base58 transaction signature.
func ValidSignature(s string) bool {
	_, err := solana.SignatureFromBase58(s)
	return err == nil
}
