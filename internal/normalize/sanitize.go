package normalize

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount bounds. Values outside these ranges are parsing garbage (OCR noise,
// column misalignment) that would corrupt statement totals if persisted.
var (
	maxAmount  = decimal.NewFromInt(1_000_000_000)
	minBalance = maxAmount.Neg()
)

// Amounts is the sanitized monetary tuple of one row.
type Amounts struct {
	Credit  decimal.Decimal
	Debit   decimal.Decimal
	Balance *decimal.Decimal
}

// SanitizeAmounts bounds-checks the monetary fields of a row. Credit and
// debit must lie in [0, 1e9); balance additionally allows negatives down to
// -1e9 exclusive. An out-of-range credit or debit is reset to zero and an
// out-of-range balance to nil, each with a warning describing the original
// value. Sanitization never fails: the row continues through the pipeline
// with the offending field neutralized.
func SanitizeAmounts(credit, debit decimal.Decimal, balance *decimal.Decimal) (Amounts, []string) {
	var warnings []string
	out := Amounts{Credit: credit, Debit: debit, Balance: balance}

	if credit.IsNegative() || credit.GreaterThanOrEqual(maxAmount) {
		warnings = append(warnings, fmt.Sprintf("credit %s out of range, reset to 0", credit))
		out.Credit = decimal.Zero
	}
	if debit.IsNegative() || debit.GreaterThanOrEqual(maxAmount) {
		warnings = append(warnings, fmt.Sprintf("debit %s out of range, reset to 0", debit))
		out.Debit = decimal.Zero
	}
	if balance != nil && (balance.LessThanOrEqual(minBalance) || balance.GreaterThanOrEqual(maxAmount)) {
		warnings = append(warnings, fmt.Sprintf("balance %s out of range, cleared", balance))
		out.Balance = nil
	}

	return out, warnings
}

// Persistable reports whether sanitized amounts represent a financial event.
// A row where both credit and debit are zero is not an error and not a
// duplicate; it is simply nothing to record, and the ingestion pipeline
// skips it.
func (a Amounts) Persistable() bool {
	return a.Credit.IsPositive() || a.Debit.IsPositive()
}
