// Package store provides durable sqlite persistence for every entity in the
// ingestion pipeline. All multi-row mutations run inside database/sql
// transactions; callers compose larger atomic units via WithTx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the sqlite database. The zero value is not usable; construct
// with Open.
type Store struct {
	db *sql.DB
	q  querier
}

const schema = `
CREATE TABLE IF NOT EXISTS bank_statements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	file_path TEXT NOT NULL,
	file_hash TEXT NOT NULL UNIQUE,
	statement_date TEXT,
	account_number TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'uploaded',
	error_message TEXT NOT NULL DEFAULT '',
	metadata TEXT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS members (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	member_code TEXT NOT NULL DEFAULT '',
	member_number TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	bank_statement_id INTEGER NOT NULL REFERENCES bank_statements(id) ON DELETE CASCADE,
	tran_date TEXT NOT NULL,
	value_date TEXT,
	particulars TEXT NOT NULL,
	transaction_type TEXT NOT NULL DEFAULT '',
	credit TEXT NOT NULL DEFAULT '0',
	debit TEXT NOT NULL DEFAULT '0',
	balance TEXT,
	transaction_code TEXT NOT NULL DEFAULT '',
	phones TEXT NOT NULL DEFAULT '[]',
	row_hash TEXT NOT NULL,
	member_id INTEGER REFERENCES members(id),
	assignment_status TEXT NOT NULL DEFAULT 'unassigned',
	match_confidence REAL,
	draft_member_ids TEXT,
	raw_text TEXT NOT NULL DEFAULT '',
	raw_json TEXT,
	is_archived INTEGER NOT NULL DEFAULT 0,
	archived_at TEXT,
	archive_reason TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);
CREATE INDEX IF NOT EXISTS idx_transactions_statement ON transactions(bank_statement_id);
CREATE INDEX IF NOT EXISTS idx_transactions_row_hash ON transactions(row_hash);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(assignment_status);

CREATE TABLE IF NOT EXISTS statement_duplicates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	bank_statement_id INTEGER NOT NULL REFERENCES bank_statements(id) ON DELETE CASCADE,
	transaction_id INTEGER NOT NULL REFERENCES transactions(id),
	tran_date TEXT NOT NULL,
	transaction_code TEXT NOT NULL DEFAULT '',
	credit TEXT NOT NULL DEFAULT '0',
	duplicate_reason TEXT NOT NULL,
	particulars_snapshot TEXT NOT NULL DEFAULT '',
	metadata TEXT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);
CREATE INDEX IF NOT EXISTS idx_duplicates_statement ON statement_duplicates(bank_statement_id);

CREATE TABLE IF NOT EXISTS transaction_match_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id INTEGER NOT NULL REFERENCES transactions(id),
	member_id INTEGER REFERENCES members(id),
	confidence REAL NOT NULL,
	match_tokens TEXT NOT NULL DEFAULT '[]',
	match_reason TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	user_id INTEGER,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);
CREATE INDEX IF NOT EXISTS idx_match_logs_transaction ON transaction_match_logs(transaction_id);

CREATE TABLE IF NOT EXISTS transaction_transfers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id INTEGER NOT NULL REFERENCES transactions(id),
	from_member_id INTEGER REFERENCES members(id),
	initiated_by INTEGER,
	mode TEXT NOT NULL,
	total_amount TEXT NOT NULL DEFAULT '0',
	notes TEXT NOT NULL DEFAULT '',
	metadata TEXT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS transaction_splits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id INTEGER NOT NULL REFERENCES transactions(id),
	member_id INTEGER NOT NULL REFERENCES members(id),
	amount TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	transfer_id INTEGER REFERENCES transaction_transfers(id),
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);
CREATE INDEX IF NOT EXISTS idx_splits_transaction ON transaction_splits(transaction_id);
`

// Open opens (creating if necessary) the database at path and applies the
// schema. Foreign keys are enforced and a busy timeout is set so concurrent
// statement workers queue on the write lock instead of failing.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn against a transaction-scoped view of the store. If the
// receiver is already transaction-scoped, fn runs in the ambient
// transaction (no savepoints).
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
