package dedup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/ingest"
	"github.com/coopfin/bankintake/internal/store"
)

func newTestReanalyzer(t *testing.T) (*store.Store, *Reanalyzer) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, NewReanalyzer(st, ingest.NewCoordinator(), nil)
}

func seedStatement(t *testing.T, st *store.Store, hash string) *domain.BankStatement {
	t.Helper()
	stmt := &domain.BankStatement{
		Filename: hash + ".csv", FilePath: "/x/" + hash, FileHash: hash,
		Status: domain.StatementCompleted,
	}
	require.NoError(t, st.CreateStatement(context.Background(), stmt))
	return stmt
}

func seedTxn(t *testing.T, st *store.Store, statementID int64, credit, rowHash string) *domain.Transaction {
	t.Helper()
	txn := &domain.Transaction{
		StatementID: statementID,
		TranDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Particulars: "MPS 254712345678 JOHN KAMAU",
		Credit:      decimal.RequireFromString(credit),
		Debit:       decimal.Zero,
		RowHash:     rowHash,
		Status:      domain.AssignmentUnassigned,
	}
	require.NoError(t, st.InsertTransactions(context.Background(), []*domain.Transaction{txn}))
	return txn
}

func seedDebit(t *testing.T, st *store.Store, statementID int64, rowHash string) *domain.Transaction {
	t.Helper()
	txn := &domain.Transaction{
		StatementID: statementID,
		TranDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Particulars: "LEDGER FEES",
		Credit:      decimal.Zero,
		Debit:       decimal.RequireFromString("150"),
		RowHash:     rowHash,
		Status:      domain.AssignmentUnassigned,
	}
	require.NoError(t, st.InsertTransactions(context.Background(), []*domain.Transaction{txn}))
	return txn
}

func status(t *testing.T, st *store.Store, id int64) domain.AssignmentStatus {
	t.Helper()
	txn, err := st.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return txn.Status
}

func TestRunCrossStatement(t *testing.T) {
	st, r := newTestReanalyzer(t)
	ctx := context.Background()

	a := seedStatement(t, st, "a")
	b := seedStatement(t, st, "b")
	keeper := seedTxn(t, st, a.ID, "1500", "same")
	dup := seedTxn(t, st, b.ID, "1500", "same")
	unique := seedTxn(t, st, b.ID, "2000", "other")

	report, err := r.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CrossStatement)
	assert.Equal(t, 0, report.IntraStatement)

	assert.Equal(t, domain.AssignmentUnassigned, status(t, st, keeper.ID), "earliest row is kept")
	assert.Equal(t, domain.AssignmentDuplicate, status(t, st, dup.ID))
	assert.Equal(t, domain.AssignmentUnassigned, status(t, st, unique.ID))

	records, err := st.ListStatementDuplicates(ctx, &b.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.DuplicateCrossStatement, records[0].Reason)
	assert.Equal(t, keeper.ID, records[0].TransactionID, "audit row points at the kept transaction")
	assert.EqualValues(t, dup.ID, records[0].Metadata["duplicate_transaction_id"])
}

func TestRunIntraStatement(t *testing.T) {
	st, r := newTestReanalyzer(t)
	ctx := context.Background()

	a := seedStatement(t, st, "a")
	first := seedTxn(t, st, a.ID, "1000", "same")
	second := seedTxn(t, st, a.ID, "1000", "same")
	third := seedTxn(t, st, a.ID, "1000", "same")

	report, err := r.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.IntraStatement)

	assert.Equal(t, domain.AssignmentUnassigned, status(t, st, first.ID))
	assert.Equal(t, domain.AssignmentDuplicate, status(t, st, second.ID))
	assert.Equal(t, domain.AssignmentDuplicate, status(t, st, third.ID))
}

func TestRunIsIdempotent(t *testing.T) {
	st, r := newTestReanalyzer(t)
	ctx := context.Background()

	a := seedStatement(t, st, "a")
	b := seedStatement(t, st, "b")
	seedTxn(t, st, a.ID, "1500", "same")
	seedTxn(t, st, b.ID, "1500", "same")

	first, err := r.Run(ctx, nil)
	require.NoError(t, err)
	second, err := r.Run(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Demoted(), second.Demoted())
	assert.EqualValues(t, 1, second.RecordsCleared, "previous run's audit rows are replaced")
	assert.EqualValues(t, 1, second.StatusesReset)

	records, err := st.ListStatementDuplicates(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, records, 1, "no audit row accumulation across runs")
}

func TestRunRehabilitatesOrphanedDuplicates(t *testing.T) {
	st, r := newTestReanalyzer(t)
	ctx := context.Background()

	a := seedStatement(t, st, "a")
	orphan := seedTxn(t, st, a.ID, "1500", "lonely")
	require.NoError(t, st.UpdateAssignment(ctx, orphan.ID, nil, domain.AssignmentDuplicate, nil, nil))

	report, err := r.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Demoted())
	assert.Equal(t, domain.AssignmentUnassigned, status(t, st, orphan.ID),
		"a duplicate with no surviving twin returns to unassigned")
}

func TestRunScopedToStatement(t *testing.T) {
	st, r := newTestReanalyzer(t)
	ctx := context.Background()

	a := seedStatement(t, st, "a")
	b := seedStatement(t, st, "b")
	keeper := seedTxn(t, st, a.ID, "1500", "same")
	inScope := seedTxn(t, st, b.ID, "1500", "same")
	outOfScope := seedTxn(t, st, a.ID, "1500", "same")

	report, err := r.Run(ctx, &b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Demoted())

	assert.Equal(t, domain.AssignmentDuplicate, status(t, st, inScope.ID),
		"scoped run still compares against the whole corpus")
	assert.Equal(t, domain.AssignmentUnassigned, status(t, st, outOfScope.ID),
		"rows outside the scope are left alone")
	assert.Equal(t, domain.AssignmentUnassigned, status(t, st, keeper.ID))
}

func TestRunIgnoresDebitRows(t *testing.T) {
	st, r := newTestReanalyzer(t)
	ctx := context.Background()

	a := seedStatement(t, st, "a")
	b := seedStatement(t, st, "b")
	d1 := seedDebit(t, st, a.ID, "feehash")
	d2 := seedDebit(t, st, b.ID, "feehash")

	report, err := r.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Demoted())
	assert.Equal(t, domain.AssignmentUnassigned, status(t, st, d1.ID))
	assert.Equal(t, domain.AssignmentUnassigned, status(t, st, d2.ID))
}

func TestRunPreservesAssignmentsOnKeeper(t *testing.T) {
	st, r := newTestReanalyzer(t)
	ctx := context.Background()

	a := seedStatement(t, st, "a")
	b := seedStatement(t, st, "b")
	keeper := seedTxn(t, st, a.ID, "1500", "same")
	dup := seedTxn(t, st, b.ID, "1500", "same")

	member := &domain.Member{Name: "John Kamau", Phone: "0712345678", IsActive: true}
	require.NoError(t, st.InsertMember(ctx, member))
	conf := 1.0
	require.NoError(t, st.UpdateAssignment(ctx, keeper.ID, &member.ID, domain.AssignmentManualAssigned, &conf, nil))

	_, err := r.Run(ctx, nil)
	require.NoError(t, err)

	got, err := st.GetTransaction(ctx, keeper.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentManualAssigned, got.Status)
	require.NotNil(t, got.MemberID)
	assert.Equal(t, member.ID, *got.MemberID)
	assert.Equal(t, domain.AssignmentDuplicate, status(t, st, dup.ID))
}

func TestRunUnknownStatement(t *testing.T) {
	_, r := newTestReanalyzer(t)
	missing := int64(42)
	_, err := r.Run(context.Background(), &missing)
	assert.Error(t, err)
}
