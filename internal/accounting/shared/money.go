package shared

import "github.com/shopspring/decimal"

// Tolerance is the largest difference treated as zero when comparing totals.
var Tolerance = decimal.New(1, -2)

// Round2 rounds an amount to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithinTolerance reports |a-b| < 0.01.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Tolerance)
}

// NormalBalance names the side on which an account increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// Valid reports whether the side is known.
func (n NormalBalance) Valid() bool {
	return n == NormalDebit || n == NormalCredit
}

// SignedDelta converts a debit/credit pair into the change applied to an
// account balance with the given normal side.
func SignedDelta(normal NormalBalance, debit, credit decimal.Decimal) decimal.Decimal {
	if normal == NormalCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}
