// internal/service/outcome_resolver.go
package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"coinflip-settlement/internal/domain"
)

// SeedSize is the number of random bytes drawn per outcome.
const SeedSize = 32

// Outcome is a resolved flip with the seed that produced it.
type Outcome struct {
	Side domain.Side
	Seed string // hex, revealed with the wager
}

// OutcomeResolver decides the result of a wager. The chosen side is never an input.
type OutcomeResolver interface {
	Resolve(depositReference string) (Outcome, error)
}

// outcomeResolver implements the OutcomeResolver interface.
type outcomeResolver struct {
	entropy io.Reader
}

// NewOutcomeResolver creates a resolver seeded from crypto/rand.
func NewOutcomeResolver() OutcomeResolver {
	return &outcomeResolver{entropy: rand.Reader}
}

// Resolve draws a fresh seed and derives the side from it and the deposit reference.
func (r *outcomeResolver) Resolve(depositReference string) (Outcome, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(r.entropy, seed); err != nil {
		return Outcome{}, fmt.Errorf("resolve %s: failed to read entropy: %w", depositReference, err)
	}
	return Outcome{
		Side: sideFor(seed, depositReference),
		Seed: hex.EncodeToString(seed),
	}, nil
}

// VerifyOutcome recomputes the side from a revealed seed and checks it matches.
func VerifyOutcome(seedHex, depositReference string, side domain.Side) bool {
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != SeedSize {
		return false
	}
	return sideFor(seed, depositReference) == side
}

// sideFor maps the low bit of HMAC-SHA256(seed, reference) to a side: 0 is A, 1 is B.
func sideFor(seed []byte, depositReference string) domain.Side {
	mac := hmac.New(sha256.New, seed)
	mac.Write([]byte(depositReference))
	sum := mac.Sum(nil)
	if sum[len(sum)-1]&1 == 0 {
		return domain.SideA
	}
	return domain.SideB
}
