// Package transfer manages splitting a transaction's credit across members
// and re-attributing transactions after the fact.
package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/store"
)

// SplitEntry is one requested slice of a transaction's credit.
type SplitEntry struct {
	MemberID int64
	Amount   decimal.Decimal
	Notes    string
}

// Service owns split and transfer mutations.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// NewService creates a transfer service.
func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// ReplaceSplits atomically replaces a transaction's splits with the given
// entries. Existing splits are discarded wholesale; there is no partial
// edit. The entry sum may be less than the credit (the remainder stays
// unattributed) but never more. The transaction's own member and status are
// untouched: split rows are additive attribution detail, and only a
// transfer changes the status.
func (s *Service) ReplaceSplits(ctx context.Context, transactionID int64, entries []SplitEntry) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		if _, err := s.splittableTransaction(ctx, tx, transactionID, entries); err != nil {
			return err
		}
		if _, err := tx.DeleteSplits(ctx, transactionID); err != nil {
			return err
		}
		return s.insertSplits(ctx, tx, transactionID, entries, nil)
	})
}

// Unsplit removes every split. Like ReplaceSplits it leaves the
// transaction's member and status alone; callers unsplit to clear the way
// for an ordinary single-member assignment.
func (s *Service) Unsplit(ctx context.Context, transactionID int64) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		txn, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn.IsArchived {
			return fmt.Errorf("%w: transaction %d", domain.ErrArchived, transactionID)
		}

		removed, err := tx.DeleteSplits(ctx, transactionID)
		if err != nil {
			return err
		}
		if removed == 0 {
			return fmt.Errorf("transaction %d has no splits", txn.ID)
		}
		return nil
	})
}

// Request describes one transfer. Single mode re-attributes the whole
// transaction to ToMemberID; split mode replaces the attribution with the
// given entries.
type Request struct {
	Mode        domain.TransferMode
	ToMemberID  int64
	Entries     []SplitEntry
	InitiatedBy *int64
	Notes       string
}

// Transfer re-attributes a transaction and records the immutable transfer
// event. The transaction lands in transferred status either way.
func (s *Service) Transfer(ctx context.Context, transactionID int64, req Request) (*domain.TransactionTransfer, error) {
	if !domain.ValidateTransferMode(req.Mode) {
		return nil, fmt.Errorf("invalid transfer mode: %s", req.Mode)
	}

	var record *domain.TransactionTransfer
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		txn, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn.IsArchived {
			return fmt.Errorf("%w: transaction %d", domain.ErrArchived, transactionID)
		}
		if !domain.CanTransition(txn.Status, domain.AssignmentTransferred) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, txn.Status, domain.AssignmentTransferred)
		}

		switch req.Mode {
		case domain.TransferSingle:
			record, err = s.transferSingle(ctx, tx, txn, req)
		case domain.TransferSplit:
			record, err = s.transferSplit(ctx, tx, txn, req)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction transferred",
		"transaction_id", transactionID, "mode", record.Mode,
		"amount", record.TotalAmount)
	return record, nil
}

func (s *Service) transferSingle(ctx context.Context, tx *store.Store, txn *domain.Transaction, req Request) (*domain.TransactionTransfer, error) {
	splits, err := tx.ListSplits(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	if len(splits) > 0 {
		return nil, fmt.Errorf("%w: transaction %d, use split mode", domain.ErrHasSplits, txn.ID)
	}
	if _, err := tx.GetMember(ctx, req.ToMemberID); err != nil {
		return nil, fmt.Errorf("failed to load member %d: %w", req.ToMemberID, err)
	}

	record := &domain.TransactionTransfer{
		TransactionID: txn.ID,
		FromMemberID:  txn.MemberID,
		InitiatedBy:   req.InitiatedBy,
		Mode:          domain.TransferSingle,
		TotalAmount:   txn.Credit,
		Notes:         req.Notes,
		Metadata:      map[string]any{"to_member_id": req.ToMemberID},
	}
	if err := tx.InsertTransfer(ctx, record); err != nil {
		return nil, err
	}
	if err := s.logRecipient(ctx, tx, txn.ID, req.ToMemberID, req.InitiatedBy); err != nil {
		return nil, err
	}

	memberID := req.ToMemberID
	if err := tx.UpdateAssignment(ctx, txn.ID, &memberID, domain.AssignmentTransferred, nil, nil); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) transferSplit(ctx context.Context, tx *store.Store, txn *domain.Transaction, req Request) (*domain.TransactionTransfer, error) {
	if err := validateEntries(txn, req.Entries); err != nil {
		return nil, err
	}

	record := &domain.TransactionTransfer{
		TransactionID: txn.ID,
		FromMemberID:  txn.MemberID,
		InitiatedBy:   req.InitiatedBy,
		Mode:          domain.TransferSplit,
		TotalAmount:   sumEntries(req.Entries),
		Notes:         req.Notes,
	}
	if err := tx.InsertTransfer(ctx, record); err != nil {
		return nil, err
	}

	if _, err := tx.DeleteSplits(ctx, txn.ID); err != nil {
		return nil, err
	}
	if err := s.insertSplits(ctx, tx, txn.ID, req.Entries, &record.ID); err != nil {
		return nil, err
	}
	for _, entry := range req.Entries {
		if err := s.logRecipient(ctx, tx, txn.ID, entry.MemberID, req.InitiatedBy); err != nil {
			return nil, err
		}
	}

	// A lone recipient is a direct attribution; multiple recipients are
	// attributed through their split rows.
	var memberID *int64
	if len(req.Entries) == 1 {
		memberID = &req.Entries[0].MemberID
	}
	if err := tx.UpdateAssignment(ctx, txn.ID, memberID, domain.AssignmentTransferred, nil, nil); err != nil {
		return nil, err
	}
	return record, nil
}

// logRecipient writes the manual match log that accompanies a transfer.
func (s *Service) logRecipient(ctx context.Context, tx *store.Store, transactionID, memberID int64, userID *int64) error {
	log, err := domain.NewMatchLog(transactionID, &memberID, 1.0, domain.MatchSourceManual)
	if err != nil {
		return err
	}
	log.MatchReason = "transfer"
	log.UserID = userID
	return tx.InsertMatchLog(ctx, log)
}

func (s *Service) splittableTransaction(ctx context.Context, tx *store.Store, transactionID int64, entries []SplitEntry) (*domain.Transaction, error) {
	txn, err := tx.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.IsArchived {
		return nil, fmt.Errorf("%w: transaction %d", domain.ErrArchived, transactionID)
	}
	if err := validateEntries(txn, entries); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) insertSplits(ctx context.Context, tx *store.Store, transactionID int64, entries []SplitEntry, transferID *int64) error {
	for _, entry := range entries {
		if _, err := tx.GetMember(ctx, entry.MemberID); err != nil {
			return fmt.Errorf("failed to load member %d: %w", entry.MemberID, err)
		}
		split := &domain.TransactionSplit{
			TransactionID: transactionID,
			MemberID:      entry.MemberID,
			Amount:        entry.Amount,
			Notes:         entry.Notes,
			TransferID:    transferID,
		}
		if err := tx.InsertSplit(ctx, split); err != nil {
			return err
		}
	}
	return nil
}

func validateEntries(txn *domain.Transaction, entries []SplitEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("at least one split entry is required")
	}
	if !txn.Credit.IsPositive() {
		return fmt.Errorf("transaction %d has no credit to split", txn.ID)
	}

	seen := make(map[int64]struct{}, len(entries))
	for _, entry := range entries {
		if !entry.Amount.IsPositive() {
			return fmt.Errorf("split amount must be positive, got %s", entry.Amount)
		}
		if _, dup := seen[entry.MemberID]; dup {
			return fmt.Errorf("member %d appears in multiple split entries", entry.MemberID)
		}
		seen[entry.MemberID] = struct{}{}
	}

	total := sumEntries(entries)
	if total.GreaterThan(txn.Credit) {
		return fmt.Errorf("%w: %s > %s", domain.ErrOverAllocated, total, txn.Credit)
	}
	return nil
}

func sumEntries(entries []SplitEntry) decimal.Decimal {
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.Amount)
	}
	return total
}
