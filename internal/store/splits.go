package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coopfin/bankintake/internal/domain"
)

// ListSplits returns a transaction's splits in insertion order.
func (s *Store) ListSplits(ctx context.Context, transactionID int64) ([]*domain.TransactionSplit, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, transaction_id, member_id, amount, notes, transfer_id, created_at
		FROM transaction_splits
		WHERE transaction_id = ? ORDER BY id ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", err)
	}
	defer rows.Close()

	var out []*domain.TransactionSplit
	for rows.Next() {
		var (
			sp         domain.TransactionSplit
			amount     string
			transferID sql.NullInt64
			createdAt  string
		)
		if err := rows.Scan(&sp.ID, &sp.TransactionID, &sp.MemberID,
			&amount, &sp.Notes, &transferID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		if sp.Amount, err = decodeDecimal(amount); err != nil {
			return nil, err
		}
		sp.TransferID = nullInt64Ptr(transferID)
		sp.CreatedAt = decodeTime(createdAt)
		out = append(out, &sp)
	}
	return out, rows.Err()
}

// InsertSplit persists one split row and populates its ID.
func (s *Store) InsertSplit(ctx context.Context, sp *domain.TransactionSplit) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO transaction_splits (transaction_id, member_id, amount, notes, transfer_id)
		VALUES (?, ?, ?, ?, ?)`,
		sp.TransactionID, sp.MemberID, sp.Amount.String(), sp.Notes,
		int64PtrArg(sp.TransferID))
	if err != nil {
		return fmt.Errorf("failed to insert split: %w", err)
	}

	sp.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read split ID: %w", err)
	}
	return nil
}

// DeleteSplits removes every split of a transaction and returns the number
// removed.
func (s *Store) DeleteSplits(ctx context.Context, transactionID int64) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM transaction_splits WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete splits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// InsertTransfer records one re-attribution event and populates its ID.
func (s *Store) InsertTransfer(ctx context.Context, tr *domain.TransactionTransfer) error {
	if !domain.ValidateTransferMode(tr.Mode) {
		return fmt.Errorf("invalid transfer mode: %s", tr.Mode)
	}
	meta, err := encodeJSON(tr.Metadata)
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO transaction_transfers
			(transaction_id, from_member_id, initiated_by, mode, total_amount, notes, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tr.TransactionID, int64PtrArg(tr.FromMemberID),
		int64PtrArg(tr.InitiatedBy), string(tr.Mode),
		tr.TotalAmount.String(), tr.Notes, meta)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	tr.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read transfer ID: %w", err)
	}
	return nil
}

// ListTransfers returns a transaction's transfer history in insertion
// order.
func (s *Store) ListTransfers(ctx context.Context, transactionID int64) ([]*domain.TransactionTransfer, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, transaction_id, from_member_id, initiated_by, mode,
			total_amount, notes, metadata, created_at
		FROM transaction_transfers
		WHERE transaction_id = ? ORDER BY id ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var out []*domain.TransactionTransfer
	for rows.Next() {
		var (
			tr          domain.TransactionTransfer
			fromMember  sql.NullInt64
			initiatedBy sql.NullInt64
			mode        string
			amount      string
			meta        sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&tr.ID, &tr.TransactionID, &fromMember,
			&initiatedBy, &mode, &amount, &tr.Notes, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		if tr.TotalAmount, err = decodeDecimal(amount); err != nil {
			return nil, err
		}
		if tr.Metadata, err = decodeJSONMap(meta); err != nil {
			return nil, err
		}
		tr.FromMemberID = nullInt64Ptr(fromMember)
		tr.InitiatedBy = nullInt64Ptr(initiatedBy)
		tr.Mode = domain.TransferMode(mode)
		tr.CreatedAt = decodeTime(createdAt)
		out = append(out, &tr)
	}
	return out, rows.Err()
}
