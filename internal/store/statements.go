package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/coopfin/bankintake/internal/domain"
)

const statementColumns = `id, filename, file_path, file_hash, statement_date,
	account_number, status, error_message, metadata, created_at`

// CreateStatement inserts a new statement record and populates its ID.
// A statement whose file hash already exists is rejected by the unique
// constraint; callers should check StatementByFileHash first for a
// friendlier error.
func (s *Store) CreateStatement(ctx context.Context, stmt *domain.BankStatement) error {
	meta, err := encodeJSON(stmt.Metadata)
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO bank_statements
			(filename, file_path, file_hash, statement_date, account_number, status, error_message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stmt.Filename, stmt.FilePath, stmt.FileHash,
		encodeDatePtr(stmt.StatementDate), stmt.AccountNumber,
		string(stmt.Status), stmt.ErrorMessage, meta)
	if err != nil {
		return fmt.Errorf("failed to insert statement: %w", err)
	}

	stmt.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read statement ID: %w", err)
	}
	return nil
}

// GetStatement fetches a statement by ID.
func (s *Store) GetStatement(ctx context.Context, id int64) (*domain.BankStatement, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+statementColumns+` FROM bank_statements WHERE id = ?`, id)
	return scanStatement(row)
}

// StatementByFileHash fetches the statement with the given file hash, or
// ErrNotFound when no upload with that content exists.
func (s *Store) StatementByFileHash(ctx context.Context, hash string) (*domain.BankStatement, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+statementColumns+` FROM bank_statements WHERE file_hash = ?`, hash)
	return scanStatement(row)
}

// ListStatements returns statements, optionally filtered to the given
// statuses, newest first.
func (s *Store) ListStatements(ctx context.Context, statuses ...domain.StatementStatus) ([]*domain.BankStatement, error) {
	query := `SELECT ` + statementColumns + ` FROM bank_statements`
	var args []any
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY id DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	defer rows.Close()

	var out []*domain.BankStatement
	for rows.Next() {
		stmt, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, rows.Err()
}

// UpdateStatementStatus moves a statement to a new lifecycle status,
// recording the error message (empty on success paths).
func (s *Store) UpdateStatementStatus(ctx context.Context, id int64, status domain.StatementStatus, errorMessage string) error {
	if !domain.ValidateStatementStatus(status) {
		return fmt.Errorf("invalid statement status: %s", status)
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE bank_statements SET status = ?, error_message = ? WHERE id = ?`,
		string(status), errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to update statement status: %w", err)
	}
	return requireRow(res)
}

// SetStatementMetadata replaces a statement's metadata document.
func (s *Store) SetStatementMetadata(ctx context.Context, id int64, metadata map[string]any) error {
	meta, err := encodeJSON(metadata)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE bank_statements SET metadata = ? WHERE id = ?`, meta, id)
	if err != nil {
		return fmt.Errorf("failed to update statement metadata: %w", err)
	}
	return requireRow(res)
}

// SetStatementDate records the statement period date discovered during parsing.
func (s *Store) SetStatementDate(ctx context.Context, id int64, date time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE bank_statements SET statement_date = ? WHERE id = ?`,
		encodeDate(date), id)
	if err != nil {
		return fmt.Errorf("failed to update statement date: %w", err)
	}
	return requireRow(res)
}

// DeleteStatementRows removes all transactions and duplicate audit rows
// belonging to a statement. Used when reprocessing a previously ingested
// file.
func (s *Store) DeleteStatementRows(ctx context.Context, statementID int64) error {
	return s.WithTx(ctx, func(tx *Store) error {
		// Other statements' audit rows may reference this statement's
		// transactions as their kept copy; those verdicts are stale once
		// the rows are gone and the next reanalysis recomputes them.
		if _, err := tx.q.ExecContext(ctx,
			`DELETE FROM statement_duplicates WHERE bank_statement_id = ?
				OR transaction_id IN (SELECT id FROM transactions WHERE bank_statement_id = ?)`,
			statementID, statementID); err != nil {
			return fmt.Errorf("failed to delete duplicate records: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx,
			`DELETE FROM transaction_match_logs WHERE transaction_id IN
				(SELECT id FROM transactions WHERE bank_statement_id = ?)`, statementID); err != nil {
			return fmt.Errorf("failed to delete match logs: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx,
			`DELETE FROM transaction_splits WHERE transaction_id IN
				(SELECT id FROM transactions WHERE bank_statement_id = ?)`, statementID); err != nil {
			return fmt.Errorf("failed to delete splits: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx,
			`DELETE FROM transaction_transfers WHERE transaction_id IN
				(SELECT id FROM transactions WHERE bank_statement_id = ?)`, statementID); err != nil {
			return fmt.Errorf("failed to delete transfer records: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx,
			`DELETE FROM transactions WHERE bank_statement_id = ?`, statementID); err != nil {
			return fmt.Errorf("failed to delete transactions: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatement(row rowScanner) (*domain.BankStatement, error) {
	var (
		stmt      domain.BankStatement
		stmtDate  sql.NullString
		status    string
		meta      sql.NullString
		createdAt string
	)
	err := row.Scan(&stmt.ID, &stmt.Filename, &stmt.FilePath, &stmt.FileHash,
		&stmtDate, &stmt.AccountNumber, &status, &stmt.ErrorMessage,
		&meta, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}

	if stmt.StatementDate, err = decodeDatePtr(stmtDate); err != nil {
		return nil, err
	}
	if stmt.Metadata, err = decodeJSONMap(meta); err != nil {
		return nil, err
	}
	stmt.Status = domain.StatementStatus(status)
	stmt.CreatedAt = decodeTime(createdAt)
	return &stmt, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
