// Package dedup demotes repeated statement rows via content-hash analysis.
//
// Detection is deferred: ingestion persists every row as unassigned and the
// reanalyzer here is the only writer of the duplicate status. Each run
// clears its scope's prior verdicts and recomputes them from the current
// corpus, so the outcome depends only on what is stored now, not on the
// order statements happened to arrive in.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/ingest"
	"github.com/coopfin/bankintake/internal/store"
)

// Report summarizes one reanalysis run.
type Report struct {
	StatementID    *int64
	RecordsCleared int64
	StatusesReset  int64
	CrossStatement int
	IntraStatement int
	AuditFailures  int
}

// Demoted returns the total number of transactions marked duplicate.
func (r *Report) Demoted() int {
	return r.CrossStatement + r.IntraStatement
}

// Reanalyzer recomputes duplicate verdicts across the stored corpus.
type Reanalyzer struct {
	store  *store.Store
	coord  *ingest.Coordinator
	logger *slog.Logger
}

// NewReanalyzer creates a reanalyzer.
func NewReanalyzer(st *store.Store, coord *ingest.Coordinator, logger *slog.Logger) *Reanalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reanalyzer{store: st, coord: coord, logger: logger}
}

// Run reanalyzes duplicates. A nil statementID covers the whole corpus;
// otherwise only the given statement's transactions are re-verdicted,
// though their hashes are still compared against every stored transaction.
// Clearing and recomputing happen in one database transaction, so readers
// never observe a half-cleared corpus.
func (r *Reanalyzer) Run(ctx context.Context, statementID *int64) (*Report, error) {
	var report *Report
	err := r.coord.Exclusive(func() error {
		return r.store.WithTx(ctx, func(tx *store.Store) error {
			var err error
			report, err = r.run(ctx, tx, statementID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("duplicate reanalysis complete",
		"scope", scopeLabel(statementID),
		"cleared", report.RecordsCleared,
		"reset", report.StatusesReset,
		"cross_statement", report.CrossStatement,
		"intra_statement", report.IntraStatement,
		"audit_failures", report.AuditFailures)
	return report, nil
}

func (r *Reanalyzer) run(ctx context.Context, tx *store.Store, statementID *int64) (*Report, error) {
	report := &Report{StatementID: statementID}

	if statementID != nil {
		if _, err := tx.GetStatement(ctx, *statementID); err != nil {
			return nil, fmt.Errorf("failed to load statement %d: %w", *statementID, err)
		}
	}

	// Clear phase. Prior verdicts in scope are discarded wholesale;
	// transactions that are no longer duplicates (their twin was
	// reprocessed away) come back as unassigned and stay there.
	cleared, err := tx.DeleteStatementDuplicates(ctx, statementID)
	if err != nil {
		return nil, err
	}
	report.RecordsCleared = cleared

	reset, err := tx.ResetDuplicateStatuses(ctx, statementID)
	if err != nil {
		return nil, err
	}
	report.StatusesReset = reset

	// Only credit rows participate. Debit rows all share a zero credit in
	// their hash and would collide on date and particulars alone.
	all, err := tx.ListTransactions(ctx, store.TransactionFilter{CreditOnly: true})
	if err != nil {
		return nil, err
	}

	// Recompute phase. Within each hash group the lowest ID is kept and
	// the rest are demoted; insertion order is arrival order, so the
	// keeper is the first time the bank reported the row.
	groups := make(map[string][]*domain.Transaction)
	order := make([]string, 0)
	for _, txn := range all {
		if _, seen := groups[txn.RowHash]; !seen {
			order = append(order, txn.RowHash)
		}
		groups[txn.RowHash] = append(groups[txn.RowHash], txn)
	}

	for _, hash := range order {
		group := groups[hash]
		if len(group) < 2 {
			continue
		}
		keeper := group[0]
		for _, dup := range group[1:] {
			if statementID != nil && dup.StatementID != *statementID {
				continue
			}
			r.demote(ctx, tx, report, keeper, dup)
		}
	}

	return report, nil
}

// demote marks one transaction duplicate and records the audit row. A
// transaction whose current status refuses the transition, or whose audit
// record cannot be written, is logged and left alone.
func (r *Reanalyzer) demote(ctx context.Context, tx *store.Store, report *Report, keeper, dup *domain.Transaction) {
	if !domain.CanTransition(dup.Status, domain.AssignmentDuplicate) {
		r.logger.Warn("skipping duplicate demotion, transition not allowed",
			"transaction_id", dup.ID, "status", dup.Status)
		report.AuditFailures++
		return
	}

	reason := domain.DuplicateCrossStatement
	if dup.StatementID == keeper.StatementID {
		reason = domain.DuplicateIntraStatement
	}

	record, err := domain.NewStatementDuplicate(dup.StatementID, keeper.ID, reason)
	if err != nil {
		r.logger.Warn("skipping duplicate demotion, audit record invalid",
			"transaction_id", dup.ID, "error", err)
		report.AuditFailures++
		return
	}
	record.TranDate = dup.TranDate
	record.TransactionCode = dup.TransactionCode
	record.Credit = dup.Credit
	record.ParticularsSnapshot = dup.Particulars
	record.Metadata = map[string]any{
		"duplicate_transaction_id": dup.ID,
		"kept_statement_id":        keeper.StatementID,
		"row_hash":                 dup.RowHash,
	}

	if err := tx.InsertStatementDuplicate(ctx, record); err != nil {
		r.logger.Warn("skipping duplicate demotion, audit write failed",
			"transaction_id", dup.ID, "error", err)
		report.AuditFailures++
		return
	}

	if err := tx.UpdateAssignment(ctx, dup.ID, dup.MemberID, domain.AssignmentDuplicate, dup.MatchConfidence, dup.DraftMemberIDs); err != nil {
		r.logger.Warn("skipping duplicate demotion, status write failed",
			"transaction_id", dup.ID, "error", err)
		report.AuditFailures++
		return
	}

	if reason == domain.DuplicateCrossStatement {
		report.CrossStatement++
	} else {
		report.IntraStatement++
	}
}

func scopeLabel(statementID *int64) string {
	if statementID == nil {
		return "all"
	}
	return fmt.Sprintf("statement %d", statementID)
}
