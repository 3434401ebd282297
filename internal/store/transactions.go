package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/coopfin/bankintake/internal/domain"
)

const transactionColumns = `id, bank_statement_id, tran_date, value_date,
	particulars, transaction_type, credit, debit, balance, transaction_code,
	phones, row_hash, member_id, assignment_status, match_confidence,
	draft_member_ids, raw_text, raw_json, is_archived, archived_at,
	archive_reason, created_at`

// InsertTransactions persists a batch of transactions in one database
// transaction and populates their IDs in insertion order.
func (s *Store) InsertTransactions(ctx context.Context, txns []*domain.Transaction) error {
	return s.WithTx(ctx, func(tx *Store) error {
		for _, t := range txns {
			if err := tx.insertTransaction(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertTransaction(ctx context.Context, t *domain.Transaction) error {
	phones, err := encodeJSON(orEmptySlice(t.Phones))
	if err != nil {
		return err
	}
	var drafts any
	if len(t.DraftMemberIDs) > 0 {
		if drafts, err = encodeJSON(t.DraftMemberIDs); err != nil {
			return err
		}
	}
	var rawJSON any
	if len(t.RawJSON) > 0 {
		rawJSON = string(t.RawJSON)
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions
			(bank_statement_id, tran_date, value_date, particulars,
			 transaction_type, credit, debit, balance, transaction_code,
			 phones, row_hash, member_id, assignment_status,
			 match_confidence, draft_member_ids, raw_text, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.StatementID, encodeDate(t.TranDate), encodeDatePtr(t.ValueDate),
		t.Particulars, t.TransactionType, t.Credit.String(), t.Debit.String(),
		encodeDecimalPtr(t.Balance), t.TransactionCode, phones, t.RowHash,
		int64PtrArg(t.MemberID), string(t.Status),
		float64PtrArg(t.MatchConfidence), drafts, t.RawText, rawJSON)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read transaction ID: %w", err)
	}
	return nil
}

// GetTransaction fetches one transaction by ID.
func (s *Store) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// TransactionFilter narrows ListTransactions. Nil or zero fields are
// ignored.
type TransactionFilter struct {
	StatementID *int64
	MemberID    *int64
	Statuses    []domain.AssignmentStatus
	Archived    *bool
	From        *time.Time
	To          *time.Time
	CreditOnly  bool
}

// ListTransactions returns transactions matching the filter in insertion
// order.
func (s *Store) ListTransactions(ctx context.Context, f TransactionFilter) ([]*domain.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.StatementID != nil {
		where = append(where, "bank_statement_id = ?")
		args = append(args, *f.StatementID)
	}
	if f.MemberID != nil {
		where = append(where, "member_id = ?")
		args = append(args, *f.MemberID)
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "assignment_status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Archived != nil {
		where = append(where, "is_archived = ?")
		args = append(args, boolInt(*f.Archived))
	}
	if f.From != nil {
		where = append(where, "tran_date >= ?")
		args = append(args, encodeDate(*f.From))
	}
	if f.To != nil {
		where = append(where, "tran_date <= ?")
		args = append(args, encodeDate(*f.To))
	}
	if f.CreditOnly {
		where = append(where, "CAST(credit AS REAL) > 0")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateAssignment writes a transaction's attribution fields after the
// caller has checked the status transition.
func (s *Store) UpdateAssignment(ctx context.Context, id int64, memberID *int64, status domain.AssignmentStatus, confidence *float64, draftMemberIDs []int64) error {
	if !domain.ValidateAssignmentStatus(status) {
		return fmt.Errorf("invalid assignment status: %s", status)
	}

	var drafts any
	if len(draftMemberIDs) > 0 {
		var err error
		if drafts, err = encodeJSON(draftMemberIDs); err != nil {
			return err
		}
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET member_id = ?, assignment_status = ?, match_confidence = ?, draft_member_ids = ?
		WHERE id = ?`,
		int64PtrArg(memberID), string(status), float64PtrArg(confidence), drafts, id)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	return requireRow(res)
}

// SetArchived flips a transaction's archive flag. Assignment fields are
// left untouched so unarchiving restores the record exactly as it was.
func (s *Store) SetArchived(ctx context.Context, id int64, archived bool, reason string, at *time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET is_archived = ?, archived_at = ?, archive_reason = ?
		WHERE id = ?`,
		boolInt(archived), encodeTimePtr(at), reason, id)
	if err != nil {
		return fmt.Errorf("failed to update archive state: %w", err)
	}
	return requireRow(res)
}

// ResetDuplicateStatuses rehabilitates every duplicate-status transaction
// back to unassigned, optionally scoped to one statement, and returns the
// number of rows touched.
func (s *Store) ResetDuplicateStatuses(ctx context.Context, statementID *int64) (int64, error) {
	query := `UPDATE transactions SET assignment_status = ? WHERE assignment_status = ?`
	args := []any{string(domain.AssignmentUnassigned), string(domain.AssignmentDuplicate)}
	if statementID != nil {
		query += " AND bank_statement_id = ?"
		args = append(args, *statementID)
	}

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset duplicate statuses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// TransactionsByHash returns every transaction carrying the given row hash
// in insertion order, so the first element is the keeper candidate.
func (s *Store) TransactionsByHash(ctx context.Context, hash string) ([]*domain.Transaction, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE row_hash = ? ORDER BY id ASC`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by hash: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t          domain.Transaction
		tranDate   string
		valueDate  sql.NullString
		credit     string
		debit      string
		balance    sql.NullString
		phones     sql.NullString
		memberID   sql.NullInt64
		status     string
		confidence sql.NullFloat64
		drafts     sql.NullString
		rawJSON    sql.NullString
		archived   int
		archivedAt sql.NullString
		createdAt  string
	)
	err := row.Scan(&t.ID, &t.StatementID, &tranDate, &valueDate,
		&t.Particulars, &t.TransactionType, &credit, &debit, &balance,
		&t.TransactionCode, &phones, &t.RowHash, &memberID, &status,
		&confidence, &drafts, &t.RawText, &rawJSON, &archived, &archivedAt,
		&t.ArchiveReason, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}

	if t.TranDate, err = decodeDate(tranDate); err != nil {
		return nil, err
	}
	if t.ValueDate, err = decodeDatePtr(valueDate); err != nil {
		return nil, err
	}
	if t.Credit, err = decodeDecimal(credit); err != nil {
		return nil, err
	}
	if t.Debit, err = decodeDecimal(debit); err != nil {
		return nil, err
	}
	if t.Balance, err = decodeDecimalPtr(balance); err != nil {
		return nil, err
	}
	if t.Phones, err = decodeStringSlice(phones); err != nil {
		return nil, err
	}
	if t.DraftMemberIDs, err = decodeInt64Slice(drafts); err != nil {
		return nil, err
	}
	t.MemberID = nullInt64Ptr(memberID)
	t.Status = domain.AssignmentStatus(status)
	t.MatchConfidence = nullFloat64Ptr(confidence)
	if rawJSON.Valid {
		t.RawJSON = []byte(rawJSON.String)
	}
	t.IsArchived = archived != 0
	t.ArchivedAt = decodeTimePtr(archivedAt)
	t.CreatedAt = decodeTime(createdAt)
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
