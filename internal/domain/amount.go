// internal/domain/amount.go
package domain

import "github.com/shopspring/decimal"

// LamportsPerSOL is the number of smallest ledger units in one display unit.
const LamportsPerSOL int64 = 1_000_000_000

// Lamports is an amount in the ledger's smallest unit.
type Lamports int64

// SOL converts the amount to display units. Only presentation code should call it.
func (l Lamports) SOL() decimal.Decimal {
	return decimal.New(int64(l), 0).Div(decimal.New(LamportsPerSOL, 0))
}

// String renders the amount in display units, e.g. "0.95".
func (l Lamports) String() string {
	return l.SOL().String()
}
