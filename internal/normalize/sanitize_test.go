package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestSanitizeAmounts(t *testing.T) {
	tests := []struct {
		name         string
		credit       string
		debit        string
		balance      *decimal.Decimal
		wantCredit   string
		wantDebit    string
		wantBalance  *decimal.Decimal
		wantWarnings int
	}{
		{
			name:   "valid amounts untouched",
			credit: "1500.00", debit: "0", balance: decPtr("20500.50"),
			wantCredit: "1500.00", wantDebit: "0", wantBalance: decPtr("20500.50"),
		},
		{
			name:   "negative credit reset",
			credit: "-10", debit: "0",
			wantCredit: "0", wantDebit: "0", wantWarnings: 1,
		},
		{
			name:   "oversized debit reset",
			credit: "0", debit: "1000000000",
			wantCredit: "0", wantDebit: "0", wantWarnings: 1,
		},
		{
			name:   "negative balance allowed",
			credit: "0", debit: "200", balance: decPtr("-350.75"),
			wantCredit: "0", wantDebit: "200", wantBalance: decPtr("-350.75"),
		},
		{
			name:   "oversized balance cleared",
			credit: "100", debit: "0", balance: decPtr("1000000000"),
			wantCredit: "100", wantDebit: "0", wantWarnings: 1,
		},
		{
			name:   "every field out of range",
			credit: "-1", debit: "-1", balance: decPtr("-1000000000"),
			wantCredit: "0", wantDebit: "0", wantWarnings: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := SanitizeAmounts(dec(tt.credit), dec(tt.debit), tt.balance)
			assert.True(t, got.Credit.Equal(dec(tt.wantCredit)), "credit %s", got.Credit)
			assert.True(t, got.Debit.Equal(dec(tt.wantDebit)), "debit %s", got.Debit)
			if tt.wantBalance == nil {
				assert.Nil(t, got.Balance)
			} else {
				assert.NotNil(t, got.Balance)
				assert.True(t, got.Balance.Equal(*tt.wantBalance))
			}
			assert.Len(t, warnings, tt.wantWarnings)
		})
	}
}

func TestPersistable(t *testing.T) {
	credit, _ := SanitizeAmounts(dec("100"), dec("0"), nil)
	assert.True(t, credit.Persistable())

	debit, _ := SanitizeAmounts(dec("0"), dec("100"), nil)
	assert.True(t, debit.Persistable())

	neither, _ := SanitizeAmounts(dec("0"), dec("0"), nil)
	assert.False(t, neither.Persistable())
}
