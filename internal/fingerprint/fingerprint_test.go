package fingerprint

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestFingerprintStability(t *testing.T) {
	base := Fingerprint(date("2024-03-15"), "MPS 254712345678 JOHN KAMAU", decimal.NewFromInt(1500))

	tests := []struct {
		name        string
		particulars string
		same        bool
	}{
		{"identical input", "MPS 254712345678 JOHN KAMAU", true},
		{"case difference", "mps 254712345678 john kamau", true},
		{"collapsed whitespace", "  MPS  254712345678   JOHN KAMAU ", true},
		{"different narrative", "MPS 254712345678 JANE KAMAU", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fingerprint(date("2024-03-15"), tt.particulars, decimal.NewFromInt(1500))
			if tt.same {
				assert.Equal(t, base, got)
			} else {
				assert.NotEqual(t, base, got)
			}
		})
	}
}

func TestFingerprintDiscriminants(t *testing.T) {
	particulars := "PAY BILL Acc. MARY WANJIKU"
	base := Fingerprint(date("2024-03-15"), particulars, decimal.NewFromInt(2000))

	assert.NotEqual(t, base,
		Fingerprint(date("2024-03-16"), particulars, decimal.NewFromInt(2000)),
		"date must affect the hash")
	assert.NotEqual(t, base,
		Fingerprint(date("2024-03-15"), particulars, decimal.NewFromInt(2001)),
		"credit must affect the hash")
	assert.Equal(t, base,
		Fingerprint(date("2024-03-15"), particulars, decimal.RequireFromString("2000.00")),
		"amount scale must not affect the hash")
}

func TestFingerprintHexFormat(t *testing.T) {
	got := Fingerprint(date("2024-01-01"), "anything", decimal.Zero)
	assert.Len(t, got, 64)
	assert.Regexp(t, "^[0-9a-f]+$", got)
}

func TestNormalizeParticulars(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "JOHN KAMAU", "john kamau"},
		{"collapses runs of whitespace", "a  b\t c", "a b c"},
		{"trims ends", "  trimmed  ", "trimmed"},
		{"folds fullwidth digits", "１２３", "123"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeParticulars(tt.input))
		})
	}
}
