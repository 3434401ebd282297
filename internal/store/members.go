package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/coopfin/bankintake/internal/domain"
)

// InsertMember adds a member to the directory. The pipeline itself never
// calls this; it exists for directory bootstrap and tests.
func (s *Store) InsertMember(ctx context.Context, m *domain.Member) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO members (name, phone, member_code, member_number, is_active)
		VALUES (?, ?, ?, ?, ?)`,
		m.Name, m.Phone, m.MemberCode, m.MemberNumber, boolInt(m.IsActive))
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}

	m.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read member ID: %w", err)
	}
	return nil
}

// GetMember fetches one member by ID.
func (s *Store) GetMember(ctx context.Context, id int64) (*domain.Member, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, phone, member_code, member_number, is_active
		FROM members WHERE id = ?`, id)

	var (
		m      domain.Member
		active int
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Phone, &m.MemberCode, &m.MemberNumber, &active); err != nil {
		return nil, notFound(err)
	}
	m.IsActive = active != 0
	return &m, nil
}

// FindActiveMembers returns every active member, the candidate pool for
// auto-matching.
func (s *Store) FindActiveMembers(ctx context.Context) ([]*domain.Member, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, phone, member_code, member_number, is_active
		FROM members WHERE is_active = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active members: %w", err)
	}
	defer rows.Close()

	var out []*domain.Member
	for rows.Next() {
		var (
			m      domain.Member
			active int
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.MemberCode, &m.MemberNumber, &active); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.IsActive = active != 0
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ActiveContributionTotal sums the credits attributed to a member across
// non-archived, non-duplicate transactions. Split transactions contribute
// their split amounts; unsplit transactions contribute their full credit.
// Amounts are accumulated in Go; a SQL SUM over the stored decimal strings
// would coerce them to floats.
func (s *Store) ActiveContributionTotal(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	const activeRow = `t.is_archived = 0 AND t.assignment_status != 'duplicate'`

	direct, err := s.sumAmounts(ctx, `
		SELECT t.credit
		FROM transactions t
		WHERE t.member_id = ? AND `+activeRow+`
		  AND NOT EXISTS (SELECT 1 FROM transaction_splits sp WHERE sp.transaction_id = t.id)`,
		memberID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum direct contributions: %w", err)
	}

	split, err := s.sumAmounts(ctx, `
		SELECT sp.amount
		FROM transaction_splits sp
		JOIN transactions t ON t.id = sp.transaction_id
		WHERE sp.member_id = ? AND `+activeRow,
		memberID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum split contributions: %w", err)
	}
	return direct.Add(split), nil
}

func (s *Store) sumAmounts(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		amount, err := decodeDecimal(raw)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}
