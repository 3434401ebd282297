// Package parser defines the strategy interface for statement-file sources
// and the raw row type they produce.
package parser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// Source is the strategy interface for all statement file formats.
type Source interface {
	// Name returns the source identifier (e.g. "ofx", "csv").
	Name() string

	// CanParse checks if this source can handle the file.
	CanParse(path string, header []byte) bool

	// Parse extracts raw rows from the file. Rows are returned in the
	// order they appear in the document; the ingestion pipeline preserves
	// that order when persisting.
	Parse(ctx context.Context, r io.Reader, meta Metadata) ([]RawRow, error)
}

// RawRow is one statement line before normalization. Sources parse amounts
// into exact decimals; rows with unparseable amounts are rejected at the
// source rather than carried forward.
type RawRow struct {
	TranDate        time.Time
	ValueDate       *time.Time
	Particulars     string
	Credit          decimal.Decimal
	Debit           decimal.Decimal
	Balance         *decimal.Decimal
	TransactionCode string
}

// Metadata carries file-level context into a source.
type Metadata struct {
	filePath      string
	accountNumber string
	scannedAt     time.Time
}

// NewMetadata creates validated file metadata.
func NewMetadata(filePath string, scannedAt time.Time) (Metadata, error) {
	if filePath == "" {
		return Metadata{}, fmt.Errorf("file path cannot be empty")
	}
	if scannedAt.IsZero() {
		return Metadata{}, fmt.Errorf("scan time cannot be zero")
	}

	return Metadata{filePath: filePath, scannedAt: scannedAt}, nil
}

// FilePath returns the source file path.
func (m Metadata) FilePath() string { return m.filePath }

// AccountNumber returns the account number hint, if any.
func (m Metadata) AccountNumber() string { return m.accountNumber }

// ScannedAt returns when the file was discovered.
func (m Metadata) ScannedAt() time.Time { return m.scannedAt }

// WithAccountNumber returns a copy of the metadata with the account number
// hint set (populated by sources that find it inside the document).
func (m Metadata) WithAccountNumber(accountNumber string) Metadata {
	m.accountNumber = accountNumber
	return m
}
