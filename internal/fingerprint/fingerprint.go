// Package fingerprint computes the content hash used for duplicate
// detection: SHA-256 over value date, normalized particulars and credit.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint hashes the fields that identify a financial event.
// Format: SHA256("{value_date}|{normalized particulars}|{credit}")
// with the date as YYYY-MM-DD and the credit fixed to 2 decimal places.
//
// Debit amount, transaction code and remarks are deliberately excluded: two
// rows with the same value date, narrative and credit are the same financial
// event regardless of incidental metadata differences introduced by
// re-parsing.
func Fingerprint(valueDate time.Time, particulars string, credit decimal.Decimal) string {
	input := fmt.Sprintf("%s|%s|%s",
		valueDate.Format("2006-01-02"),
		NormalizeParticulars(particulars),
		credit.StringFixed(2),
	)

	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// NormalizeParticulars canonicalizes a narrative for hashing: NFKC unicode
// normalization, whitespace runs collapsed to a single space, trimmed,
// lowercased.
func NormalizeParticulars(value string) string {
	folded := norm.NFKC.String(value)
	collapsed := strings.Join(strings.Fields(folded), " ")
	return strings.ToLower(collapsed)
}
