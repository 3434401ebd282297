package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coopfin/bankintake/internal/domain"
)

// InsertStatementDuplicate records one duplicate demotion for audit.
func (s *Store) InsertStatementDuplicate(ctx context.Context, d *domain.StatementDuplicate) error {
	meta, err := encodeJSON(d.Metadata)
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO statement_duplicates
			(bank_statement_id, transaction_id, tran_date, transaction_code,
			 credit, duplicate_reason, particulars_snapshot, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.StatementID, d.TransactionID, encodeDate(d.TranDate),
		d.TransactionCode, d.Credit.String(), string(d.Reason),
		d.ParticularsSnapshot, meta)
	if err != nil {
		return fmt.Errorf("failed to insert duplicate record: %w", err)
	}

	d.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read duplicate record ID: %w", err)
	}
	return nil
}

// DeleteStatementDuplicates clears duplicate audit rows, optionally scoped
// to one statement, and returns the number of rows removed.
func (s *Store) DeleteStatementDuplicates(ctx context.Context, statementID *int64) (int64, error) {
	query := `DELETE FROM statement_duplicates`
	var args []any
	if statementID != nil {
		query += " WHERE bank_statement_id = ?"
		args = append(args, *statementID)
	}

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicate records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// ListStatementDuplicates returns duplicate audit rows, optionally scoped
// to one statement, in insertion order.
func (s *Store) ListStatementDuplicates(ctx context.Context, statementID *int64) ([]*domain.StatementDuplicate, error) {
	query := `SELECT id, bank_statement_id, transaction_id, tran_date,
		transaction_code, credit, duplicate_reason, particulars_snapshot,
		metadata, created_at FROM statement_duplicates`
	var args []any
	if statementID != nil {
		query += " WHERE bank_statement_id = ?"
		args = append(args, *statementID)
	}
	query += " ORDER BY id ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate records: %w", err)
	}
	defer rows.Close()

	var out []*domain.StatementDuplicate
	for rows.Next() {
		var (
			d         domain.StatementDuplicate
			tranDate  string
			credit    string
			reason    string
			meta      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&d.ID, &d.StatementID, &d.TransactionID,
			&tranDate, &d.TransactionCode, &credit, &reason,
			&d.ParticularsSnapshot, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate record: %w", err)
		}
		if d.TranDate, err = decodeDate(tranDate); err != nil {
			return nil, err
		}
		if d.Credit, err = decodeDecimal(credit); err != nil {
			return nil, err
		}
		if d.Metadata, err = decodeJSONMap(meta); err != nil {
			return nil, err
		}
		d.Reason = domain.DuplicateReason(reason)
		d.CreatedAt = decodeTime(createdAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// InsertMatchLog appends one match-scoring record. Match logs are never
// updated or deleted outside statement reprocessing.
func (s *Store) InsertMatchLog(ctx context.Context, l *domain.TransactionMatchLog) error {
	tokens, err := encodeJSON(orEmptySlice(l.MatchTokens))
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO transaction_match_logs
			(transaction_id, member_id, confidence, match_tokens, match_reason, source, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.TransactionID, int64PtrArg(l.MemberID), l.Confidence, tokens,
		l.MatchReason, string(l.Source), int64PtrArg(l.UserID))
	if err != nil {
		return fmt.Errorf("failed to insert match log: %w", err)
	}

	l.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read match log ID: %w", err)
	}
	return nil
}

// ListMatchLogs returns the scoring history for one transaction in
// insertion order.
func (s *Store) ListMatchLogs(ctx context.Context, transactionID int64) ([]*domain.TransactionMatchLog, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, transaction_id, member_id, confidence, match_tokens,
			match_reason, source, user_id, created_at
		FROM transaction_match_logs
		WHERE transaction_id = ? ORDER BY id ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list match logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.TransactionMatchLog
	for rows.Next() {
		var (
			l         domain.TransactionMatchLog
			memberID  sql.NullInt64
			tokens    sql.NullString
			source    string
			userID    sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&l.ID, &l.TransactionID, &memberID,
			&l.Confidence, &tokens, &l.MatchReason, &source, &userID,
			&createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan match log: %w", err)
		}
		if l.MatchTokens, err = decodeStringSlice(tokens); err != nil {
			return nil, err
		}
		l.MemberID = nullInt64Ptr(memberID)
		l.UserID = nullInt64Ptr(userID)
		l.Source = domain.MatchSource(source)
		l.CreatedAt = decodeTime(createdAt)
		out = append(out, &l)
	}
	return out, rows.Err()
}
