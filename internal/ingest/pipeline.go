// Package ingest turns uploaded statement files into persisted transactions.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/fingerprint"
	"github.com/coopfin/bankintake/internal/normalize"
	"github.com/coopfin/bankintake/internal/parser"
	"github.com/coopfin/bankintake/internal/store"
)

// Result summarizes one statement ingestion run.
type Result struct {
	StatementID int64
	RunID       string
	Source      string
	TotalRows   int
	Persisted   int
	Skipped     int
	Warnings    []string
	Duration    time.Duration
}

// Pipeline orchestrates parsing statement files and persisting their
// transactions.
type Pipeline struct {
	store    *store.Store
	registry *Registry
	coord    *Coordinator
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(st *store.Store, registry *Registry, coord *Coordinator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: st, registry: registry, coord: coord, logger: logger}
}

// Process ingests an uploaded statement. The statement moves to processing
// immediately and always lands in completed or failed; it is never left in
// processing. Duplicate detection does not run here: every persisted row
// starts unassigned and the reanalyzer owns demotion.
func (p *Pipeline) Process(ctx context.Context, statementID int64) (*Result, error) {
	var result *Result
	err := p.coord.Shared(func() error {
		var err error
		result, err = p.process(ctx, statementID)
		return err
	})
	return result, err
}

func (p *Pipeline) process(ctx context.Context, statementID int64) (*Result, error) {
	started := time.Now()

	stmt, err := p.store.GetStatement(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load statement %d: %w", statementID, err)
	}
	if stmt.Status != domain.StatementUploaded && stmt.Status != domain.StatementFailed {
		return nil, fmt.Errorf("statement %d is %s, expected %s or %s",
			statementID, stmt.Status, domain.StatementUploaded, domain.StatementFailed)
	}

	if err := p.store.UpdateStatementStatus(ctx, statementID, domain.StatementProcessing, ""); err != nil {
		return nil, err
	}

	result, err := p.ingest(ctx, stmt, started)
	if err != nil {
		p.logger.Error("statement ingestion failed",
			"statement_id", statementID, "file", stmt.Filename, "error", err)
		if failErr := p.store.UpdateStatementStatus(ctx, statementID, domain.StatementFailed, err.Error()); failErr != nil {
			return nil, fmt.Errorf("%w (marking statement failed also failed: %v)", err, failErr)
		}
		return nil, err
	}

	p.logger.Info("statement ingested",
		"statement_id", statementID, "file", stmt.Filename,
		"run_id", result.RunID, "source", result.Source,
		"rows", result.TotalRows, "persisted", result.Persisted,
		"skipped", result.Skipped, "duration", result.Duration)
	return result, nil
}

func (p *Pipeline) ingest(ctx context.Context, stmt *domain.BankStatement, started time.Time) (*Result, error) {
	source, err := p.registry.FindSource(stmt.FilePath)
	if err != nil {
		return nil, err
	}

	meta, err := parser.NewMetadata(stmt.FilePath, started)
	if err != nil {
		return nil, err
	}
	if stmt.AccountNumber != "" {
		meta = meta.WithAccountNumber(stmt.AccountNumber)
	}

	f, err := os.Open(stmt.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement file: %w", err)
	}
	defer f.Close()

	rows, err := source.Parse(ctx, f, meta)
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}

	result := &Result{
		StatementID: stmt.ID,
		RunID:       uuid.NewString(),
		Source:      source.Name(),
		TotalRows:   len(rows),
	}

	txns := make([]*domain.Transaction, 0, len(rows))
	for i, row := range rows {
		txn, ok, warnings := p.buildTransaction(stmt.ID, row)
		for _, w := range warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: %s", i+1, w))
		}
		if !ok {
			result.Skipped++
			continue
		}
		txns = append(txns, txn)
	}
	result.Persisted = len(txns)
	result.Duration = time.Since(started)

	// The statement period ends at the latest transaction date on file. A
	// date supplied at upload wins over the derived one.
	var periodEnd time.Time
	for _, txn := range txns {
		if txn.TranDate.After(periodEnd) {
			periodEnd = txn.TranDate
		}
	}

	// Rows, metadata and the completed status land atomically so a crash
	// mid-write leaves the statement failed-or-processing with no rows
	// visible, never half a statement marked completed.
	err = p.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.InsertTransactions(ctx, txns); err != nil {
			return err
		}
		if stmt.StatementDate == nil && !periodEnd.IsZero() {
			if err := tx.SetStatementDate(ctx, stmt.ID, periodEnd); err != nil {
				return err
			}
		}
		if err := tx.SetStatementMetadata(ctx, stmt.ID, result.metadata()); err != nil {
			return err
		}
		return tx.UpdateStatementStatus(ctx, stmt.ID, domain.StatementCompleted, "")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// buildTransaction converts one raw row into a persistable transaction.
// The second return is false for rows outside the pipeline's interest
// (zero-amount decoration rows or rows rejected by sanitization).
func (p *Pipeline) buildTransaction(statementID int64, row parser.RawRow) (*domain.Transaction, bool, []string) {
	amounts, warnings := normalize.SanitizeAmounts(row.Credit, row.Debit, row.Balance)
	if !amounts.Persistable() {
		return nil, false, warnings
	}

	parsed := normalize.ParseParticulars(row.Particulars)

	code := parsed.TransactionCode
	if code == "" {
		code = row.TransactionCode
	}

	txn := &domain.Transaction{
		StatementID:     statementID,
		TranDate:        row.TranDate,
		ValueDate:       row.ValueDate,
		Particulars:     row.Particulars,
		TransactionType: parsed.Type,
		Credit:          amounts.Credit,
		Debit:           amounts.Debit,
		Balance:         amounts.Balance,
		TransactionCode: code,
		Phones:          parsed.Phones,
		Status:          domain.AssignmentUnassigned,
		RawText:         row.Particulars,
	}
	txn.RowHash = fingerprint.Fingerprint(txn.EffectiveDate(), txn.Particulars, txn.Credit)

	if raw, err := json.Marshal(parsed); err == nil {
		txn.RawJSON = raw
	}
	return txn, true, warnings
}

// Reprocess wipes a statement's transactions and audit rows, then runs
// ingestion again. Assignments made against the old rows are removed with
// them.
func (p *Pipeline) Reprocess(ctx context.Context, statementID int64) (*Result, error) {
	var result *Result
	err := p.coord.Shared(func() error {
		if err := p.store.DeleteStatementRows(ctx, statementID); err != nil {
			return err
		}
		if err := p.store.UpdateStatementStatus(ctx, statementID, domain.StatementUploaded, ""); err != nil {
			return err
		}
		var err error
		result, err = p.process(ctx, statementID)
		return err
	})
	return result, err
}

func (r *Result) metadata() map[string]any {
	return map[string]any{
		"run_id":      r.RunID,
		"source":      r.Source,
		"total_rows":  r.TotalRows,
		"persisted":   r.Persisted,
		"skipped":     r.Skipped,
		"warnings":    r.Warnings,
		"duration_ms": r.Duration.Milliseconds(),
	}
}
