// Package ofx provides OFX/QFX statement parsing for bankintake
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/coopfin/bankintake/internal/parser"
)

// Source implements OFX/QFX parsing with a stateless design.
// The struct has no fields because OFX parsing requires no configuration
// state. Each method operates solely on the input data provided, making the
// source safe for concurrent use without locking.
type Source struct{}

var sourceInstance = &Source{}

// NewSource returns the shared OFX source instance.
// Safe for concurrent use due to stateless design.
func NewSource() *Source {
	return sourceInstance
}

// getFileInfo returns a formatted file path string for error messages
func getFileInfo(meta parser.Metadata) string {
	if meta.FilePath() != "" {
		return fmt.Sprintf(" from %s", meta.FilePath())
	}
	return ""
}

// Name returns the source identifier
func (s *Source) Name() string {
	return "ofx"
}

// CanParse checks if this source can handle the file based on extension and
// header
func (s *Source) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	headerUpper := strings.ToUpper(string(header))

	// Look for OFX header markers (both v1 SGML and v2 XML formats)
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Parse extracts raw rows from an OFX/QFX bank statement. Credit card and
// investment statements are rejected; member contributions arrive on bank
// accounts only.
func (s *Source) Parse(ctx context.Context, r io.Reader, meta parser.Metadata) ([]parser.RawRow, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content%s: %w", getFileInfo(meta), err)
	}

	// ofxgo.ParseResponse does not support context cancellation, so this
	// check only catches cancellation between file read and parsing.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file%s (%d bytes): %w", getFileInfo(meta), len(content), err)
	}

	if len(response.Bank) == 0 {
		return nil, fmt.Errorf("no bank statement found in OFX file%s (creditcard: %d, investment: %d)",
			getFileInfo(meta), len(response.CreditCard), len(response.InvStmt))
	}

	bankStmt, ok := response.Bank[0].(*ofxgo.StatementResponse)
	if !ok {
		return nil, fmt.Errorf("failed to type assert bank statement: expected *ofxgo.StatementResponse, got %T", response.Bank[0])
	}
	if bankStmt.BankTranList == nil {
		return nil, fmt.Errorf("missing transaction list in bank statement%s", getFileInfo(meta))
	}

	rows := make([]parser.RawRow, 0, len(bankStmt.BankTranList.Transactions))
	for i, txn := range bankStmt.BankTranList.Transactions {
		row, err := extractRow(txn)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transaction at index %d%s: %w", i, getFileInfo(meta), err)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("OFX bank statement contains no transactions%s", getFileInfo(meta))
	}
	return rows, nil
}

// extractRow converts one OFX transaction into a raw row. Positive amounts
// are credits, negative amounts debits.
func extractRow(txn ofxgo.Transaction) (parser.RawRow, error) {
	date := txn.DtPosted.Time
	if date.IsZero() {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		return parser.RawRow{}, fmt.Errorf("transaction %s missing both posted date and user date", txn.FiTID.String())
	}

	description := strings.TrimSpace(txn.Name.String())
	if description == "" {
		description = strings.TrimSpace(txn.Memo.String())
	}
	if description == "" {
		return parser.RawRow{}, fmt.Errorf("transaction %s missing both name and memo fields", txn.FiTID.String())
	}

	// Amount is an exact rational; going through its string form avoids
	// the float64 round trip.
	amount, err := decimal.NewFromString(txn.TrnAmt.String())
	if err != nil {
		return parser.RawRow{}, fmt.Errorf("transaction %s has invalid amount %q: %w", txn.FiTID.String(), txn.TrnAmt.String(), err)
	}

	row := parser.RawRow{
		TranDate:        date,
		Particulars:     description,
		TransactionCode: txn.FiTID.String(),
	}
	if amount.IsNegative() {
		row.Debit = amount.Abs()
	} else {
		row.Credit = amount
	}
	return row, nil
}
