// Package csv provides bank CSV statement parsing for bankintake
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopfin/bankintake/internal/parser"
)

// Source implements bank CSV parsing with a stateless design.
// The struct has no fields because CSV parsing requires no configuration
// state, making the source safe for concurrent use without locking. Column
// positions are discovered from the header row of each file.
type Source struct{}

var sourceInstance = &Source{}

// NewSource returns the shared CSV source instance.
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
	return "csv"
}

// header column aliases, lowercased. The first alias found wins.
var (
	tranDateAliases    = []string{"tran date", "transaction date", "txn date", "date"}
	valueDateAliases   = []string{"value date"}
	particularsAliases = []string{"particulars", "description", "narration", "details"}
	creditAliases      = []string{"credit", "credit amount", "deposit"}
	debitAliases       = []string{"debit", "debit amount", "withdrawal"}
	balanceAliases     = []string{"balance", "running balance"}
	codeAliases        = []string{"tran code", "cheque no", "reference", "ref no"}
)

// dateLayouts are tried in order when parsing date cells.
var dateLayouts = []string{
	"02/01/2006", "2006-01-02", "02-01-2006", "02-Jan-2006", "2/1/2006",
}

// CanParse checks if this source can handle the file based on extension and
// header row
func (s *Source) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" {
		return false
	}

	r := csv.NewReader(strings.NewReader(string(header)))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	record, err := r.Read()
	if err != nil {
		return false
	}

	cols := newColumnMap(record)
	return cols.has(tranDateAliases) && cols.has(particularsAliases) &&
		(cols.has(creditAliases) || cols.has(debitAliases))
}

// Parse extracts raw rows from a bank CSV export. The first row must be a
// header; rows whose date cell does not parse are skipped as summary or
// decoration lines.
func (s *Source) Parse(ctx context.Context, r io.Reader, meta parser.Metadata) ([]parser.RawRow, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV content%s: %w", getFileInfo(meta), err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file has no data rows%s", getFileInfo(meta))
	}

	cols := newColumnMap(records[0])
	if !cols.has(tranDateAliases) || !cols.has(particularsAliases) {
		return nil, fmt.Errorf("CSV header is missing required columns%s", getFileInfo(meta))
	}

	var rows []parser.RawRow
	for i, record := range records[1:] {
		row, ok, err := s.parseRecord(cols, record)
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV row %d%s: %w", i+2, getFileInfo(meta), err)
		}
		if !ok {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV file contains no transaction rows%s", getFileInfo(meta))
	}
	return rows, nil
}

// parseRecord converts one CSV record into a raw row. The second return is
// false for rows that are not transactions (blank lines, totals, footers).
func (s *Source) parseRecord(cols columnMap, record []string) (parser.RawRow, bool, error) {
	dateCell := cols.get(record, tranDateAliases)
	if strings.TrimSpace(dateCell) == "" {
		return parser.RawRow{}, false, nil
	}

	tranDate, err := parseDate(dateCell)
	if err != nil {
		// Not a transaction row. Statement footers put totals in the
		// date column.
		return parser.RawRow{}, false, nil
	}

	row := parser.RawRow{
		TranDate:        tranDate,
		Particulars:     strings.TrimSpace(cols.get(record, particularsAliases)),
		TransactionCode: strings.TrimSpace(cols.get(record, codeAliases)),
	}

	if cell := strings.TrimSpace(cols.get(record, valueDateAliases)); cell != "" {
		valueDate, err := parseDate(cell)
		if err != nil {
			return parser.RawRow{}, false, fmt.Errorf("invalid value date %q: %w", cell, err)
		}
		row.ValueDate = &valueDate
	}

	if row.Credit, err = parseAmount(cols.get(record, creditAliases)); err != nil {
		return parser.RawRow{}, false, err
	}
	if row.Debit, err = parseAmount(cols.get(record, debitAliases)); err != nil {
		return parser.RawRow{}, false, err
	}

	if cell := strings.TrimSpace(cols.get(record, balanceAliases)); cell != "" {
		balance, err := parseAmount(cell)
		if err != nil {
			return parser.RawRow{}, false, err
		}
		row.Balance = &balance
	}

	return row, true, nil
}

// columnMap maps lowercased header names to their positions.
type columnMap map[string]int

func newColumnMap(header []string) columnMap {
	cols := make(columnMap, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := cols[key]; !seen {
			cols[key] = i
		}
	}
	return cols
}

func (c columnMap) has(aliases []string) bool {
	for _, alias := range aliases {
		if _, ok := c[alias]; ok {
			return true
		}
	}
	return false
}

func (c columnMap) get(record []string, aliases []string) string {
	for _, alias := range aliases {
		if i, ok := c[alias]; ok && i < len(record) {
			return record[i]
		}
	}
	return ""
}

func parseDate(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", cell)
}

// parseAmount parses a money cell. Empty cells and dash placeholders are
// zero. Thousands separators and currency symbols are stripped; amounts in
// parentheses are negative.
func parseAmount(cell string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(cell)
	if cleaned == "" || cleaned == "-" || cleaned == "--" {
		return decimal.Zero, nil
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	cleaned = strings.NewReplacer(",", "", "KES", "", "Ksh", "", " ", "").Replace(cleaned)

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", cell, err)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}
