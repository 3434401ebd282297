package assign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/store"
)

// Service owns assignment-state mutations. Every status write goes through
// the domain transition table; every attribution decision leaves a match
// log.
type Service struct {
	store   *store.Store
	matcher *Matcher
	logger  *slog.Logger
}

// NewService creates an assignment service.
func NewService(st *store.Store, matcher *Matcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, matcher: matcher, logger: logger}
}

// AutoReport summarizes one auto-assignment run.
type AutoReport struct {
	Examined  int
	Assigned  int
	Drafted   int
	Ambiguous int
	Unmatched int
}

// AutoAssign evaluates unassigned and draft transactions against the
// active member directory. Conclusive single matches commit; multiple
// conclusive matches draft with the contenders recorded; moderate scores
// draft; weak scores leave the transaction untouched. Every scored
// candidate is logged.
func (s *Service) AutoAssign(ctx context.Context, statementID *int64) (*AutoReport, error) {
	members, err := s.store.FindActiveMembers(ctx)
	if err != nil {
		return nil, err
	}

	notArchived := false
	txns, err := s.store.ListTransactions(ctx, store.TransactionFilter{
		StatementID: statementID,
		Statuses:    []domain.AssignmentStatus{domain.AssignmentUnassigned, domain.AssignmentDraft},
		Archived:    &notArchived,
		CreditOnly:  true,
	})
	if err != nil {
		return nil, err
	}

	report := &AutoReport{}
	for _, txn := range txns {
		if err := s.autoAssignOne(ctx, txn, members, report); err != nil {
			return nil, err
		}
	}

	s.logger.Info("auto-assignment complete",
		"examined", report.Examined, "assigned", report.Assigned,
		"drafted", report.Drafted, "ambiguous", report.Ambiguous,
		"unmatched", report.Unmatched)
	return report, nil
}

func (s *Service) autoAssignOne(ctx context.Context, txn *domain.Transaction, members []*domain.Member, report *AutoReport) error {
	// Split transactions are attributed through their split rows; a direct
	// member would be a second, conflicting attribution.
	splits, err := s.store.ListSplits(ctx, txn.ID)
	if err != nil {
		return err
	}
	if len(splits) > 0 {
		return nil
	}

	report.Examined++
	candidates := s.matcher.Evaluate(txn, members)

	return s.store.WithTx(ctx, func(tx *store.Store) error {
		for _, c := range candidates {
			memberID := c.Member.ID
			log, err := domain.NewMatchLog(txn.ID, &memberID, c.Confidence, domain.MatchSourceAuto)
			if err != nil {
				return err
			}
			log.MatchTokens = c.Tokens
			log.MatchReason = c.Reason
			if err := tx.InsertMatchLog(ctx, log); err != nil {
				return err
			}
		}

		accepted := filterByConfidence(candidates, s.matcher.cfg.AcceptThreshold)
		drafted := filterByConfidence(candidates, s.matcher.cfg.DraftThreshold)

		switch {
		case len(accepted) == 1:
			memberID := accepted[0].Member.ID
			confidence := accepted[0].Confidence
			if !domain.CanTransition(txn.Status, domain.AssignmentAutoAssigned) {
				return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, txn.Status, domain.AssignmentAutoAssigned)
			}
			report.Assigned++
			return tx.UpdateAssignment(ctx, txn.ID, &memberID, domain.AssignmentAutoAssigned, &confidence, nil)

		case len(accepted) > 1:
			report.Ambiguous++
			return s.draft(ctx, tx, txn, accepted)

		case len(drafted) > 0:
			report.Drafted++
			return s.draft(ctx, tx, txn, drafted)

		default:
			report.Unmatched++
			return nil
		}
	})
}

func (s *Service) draft(ctx context.Context, tx *store.Store, txn *domain.Transaction, candidates []Candidate) error {
	if !domain.CanTransition(txn.Status, domain.AssignmentDraft) {
		return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, txn.Status, domain.AssignmentDraft)
	}

	limit := s.matcher.cfg.MaxDraftCandidates
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Member.ID
	}
	confidence := candidates[0].Confidence
	return tx.UpdateAssignment(ctx, txn.ID, nil, domain.AssignmentDraft, &confidence, ids)
}

// Assign commits a manual attribution. Reassigning an already attributed
// transaction records a transfer from the previous member before the new
// attribution lands. Split transactions are rejected; their attribution is
// managed through the transfer service.
func (s *Service) Assign(ctx context.Context, transactionID, memberID int64, userID *int64) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		txn, err := s.mutableTransaction(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		splits, err := tx.ListSplits(ctx, txn.ID)
		if err != nil {
			return err
		}
		if len(splits) > 0 {
			return fmt.Errorf("%w: transaction %d, unsplit or transfer instead", domain.ErrHasSplits, txn.ID)
		}
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			return fmt.Errorf("failed to load member %d: %w", memberID, err)
		}
		if !domain.CanTransition(txn.Status, domain.AssignmentManualAssigned) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, txn.Status, domain.AssignmentManualAssigned)
		}

		if txn.MemberID != nil && *txn.MemberID != memberID {
			transfer := &domain.TransactionTransfer{
				TransactionID: txn.ID,
				FromMemberID:  txn.MemberID,
				InitiatedBy:   userID,
				Mode:          domain.TransferSingle,
				TotalAmount:   txn.Credit,
				Notes:         "reassignment",
				Metadata:      map[string]any{"to_member_id": memberID},
			}
			if err := tx.InsertTransfer(ctx, transfer); err != nil {
				return err
			}
		}

		log, err := domain.NewMatchLog(txn.ID, &memberID, 1.0, domain.MatchSourceManual)
		if err != nil {
			return err
		}
		log.MatchReason = "manual"
		log.UserID = userID
		if err := tx.InsertMatchLog(ctx, log); err != nil {
			return err
		}

		confidence := 1.0
		return tx.UpdateAssignment(ctx, txn.ID, &memberID, domain.AssignmentManualAssigned, &confidence, nil)
	})
}

// Flag routes a transaction to human review.
func (s *Service) Flag(ctx context.Context, transactionID int64) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		txn, err := s.mutableTransaction(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(txn.Status, domain.AssignmentFlagged) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, txn.Status, domain.AssignmentFlagged)
		}
		return tx.UpdateAssignment(ctx, txn.ID, txn.MemberID, domain.AssignmentFlagged, txn.MatchConfidence, txn.DraftMemberIDs)
	})
}

// Unassign clears a transaction's attribution. Split transactions must be
// unsplit first.
func (s *Service) Unassign(ctx context.Context, transactionID int64) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		txn, err := s.mutableTransaction(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		splits, err := tx.ListSplits(ctx, txn.ID)
		if err != nil {
			return err
		}
		if len(splits) > 0 {
			return fmt.Errorf("%w: transaction %d has %d splits", domain.ErrHasSplits, txn.ID, len(splits))
		}
		if !domain.CanTransition(txn.Status, domain.AssignmentUnassigned) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, txn.Status, domain.AssignmentUnassigned)
		}
		return tx.UpdateAssignment(ctx, txn.ID, nil, domain.AssignmentUnassigned, nil, nil)
	})
}

// Archive removes a transaction from active contribution totals. The
// assignment status is preserved so unarchiving restores the record
// exactly.
func (s *Service) Archive(ctx context.Context, transactionID int64, reason string) error {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.IsArchived {
		return fmt.Errorf("%w: transaction %d", domain.ErrArchived, transactionID)
	}
	now := time.Now().UTC()
	return s.store.SetArchived(ctx, transactionID, true, reason, &now)
}

// Unarchive restores an archived transaction to active totals.
func (s *Service) Unarchive(ctx context.Context, transactionID int64) error {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if !txn.IsArchived {
		return fmt.Errorf("%w: transaction %d", domain.ErrNotArchived, transactionID)
	}
	return s.store.SetArchived(ctx, transactionID, false, "", nil)
}

// BulkArchive archives a batch atomically: one already-archived ID fails
// the whole batch.
func (s *Service) BulkArchive(ctx context.Context, transactionIDs []int64, reason string) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		now := time.Now().UTC()
		for _, id := range transactionIDs {
			txn, err := tx.GetTransaction(ctx, id)
			if err != nil {
				return err
			}
			if txn.IsArchived {
				return fmt.Errorf("%w: transaction %d", domain.ErrArchived, id)
			}
			if err := tx.SetArchived(ctx, id, true, reason, &now); err != nil {
				return err
			}
		}
		return nil
	})
}

// mutableTransaction loads a transaction and rejects archived ones.
func (s *Service) mutableTransaction(ctx context.Context, tx *store.Store, id int64) (*domain.Transaction, error) {
	txn, err := tx.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.IsArchived {
		return nil, fmt.Errorf("%w: transaction %d", domain.ErrArchived, id)
	}
	return txn, nil
}

func filterByConfidence(candidates []Candidate, threshold float64) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if c.Confidence >= threshold {
			out = append(out, c)
		}
	}
	return out
}
