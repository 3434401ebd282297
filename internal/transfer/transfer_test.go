package transfer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/store"
)

func newTestService(t *testing.T) (*store.Store, *Service) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, NewService(st, nil)
}

func seedFixture(t *testing.T, st *store.Store) (*domain.Transaction, *domain.Member, *domain.Member) {
	t.Helper()
	ctx := context.Background()

	stmt := &domain.BankStatement{
		Filename: "march.csv", FilePath: "/x/march.csv", FileHash: "h1",
		Status: domain.StatementCompleted,
	}
	require.NoError(t, st.CreateStatement(ctx, stmt))

	txn := &domain.Transaction{
		StatementID: stmt.ID,
		TranDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Particulars: "MPS 254712345678 JOHN KAMAU",
		Credit:      decimal.RequireFromString("1000"),
		Debit:       decimal.Zero,
		RowHash:     "h",
		Status:      domain.AssignmentUnassigned,
	}
	require.NoError(t, st.InsertTransactions(ctx, []*domain.Transaction{txn}))

	alice := &domain.Member{Name: "Alice Otieno", IsActive: true}
	require.NoError(t, st.InsertMember(ctx, alice))
	bob := &domain.Member{Name: "Bob Mwangi", IsActive: true}
	require.NoError(t, st.InsertMember(ctx, bob))
	return txn, alice, bob
}

func TestReplaceSplits(t *testing.T) {
	st, svc := newTestService(t)
	ctx := context.Background()
	txn, alice, bob := seedFixture(t, st)

	err := svc.ReplaceSplits(ctx, txn.ID, []SplitEntry{
		{MemberID: alice.ID, Amount: decimal.RequireFromString("600")},
		{MemberID: bob.ID, Amount: decimal.RequireFromString("300"), Notes: "school fund"},
	})
	require.NoError(t, err)

	got, err := st.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentUnassigned, got.Status, "splitting alone never changes status")
	assert.Nil(t, got.MemberID)

	splits, err := st.ListSplits(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, splits, 2)
	assert.Equal(t, alice.ID, splits[0].MemberID)
	assert.True(t, splits[0].Amount.Equal(decimal.RequireFromString("600")))
	assert.Equal(t, "school fund", splits[1].Notes)

	// Replacement is wholesale, not additive.
	err = svc.ReplaceSplits(ctx, txn.ID, []SplitEntry{
		{MemberID: bob.ID, Amount: decimal.RequireFromString("1000")},
	})
	require.NoError(t, err)

	splits, err = st.ListSplits(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.Equal(t, bob.ID, splits[0].MemberID)
}

func TestReplaceSplitsValidation(t *testing.T) {
	st, svc := newTestService(t)
	ctx := context.Background()
	txn, alice, bob := seedFixture(t, st)

	t.Run("over-allocation", func(t *testing.T) {
		err := svc.ReplaceSplits(ctx, txn.ID, []SplitEntry{
			{MemberID: alice.ID, Amount: decimal.RequireFromString("700")},
			{MemberID: bob.ID, Amount: decimal.RequireFromString("400")},
		})
		assert.ErrorIs(t, err, domain.ErrOverAllocated)
	})

	t.Run("no entries", func(t *testing.T) {
		assert.Error(t, svc.ReplaceSplits(ctx, txn.ID, nil))
	})

	t.Run("non-positive amount", func(t *testing.T) {
		err := svc.ReplaceSplits(ctx, txn.ID, []SplitEntry{
			{MemberID: alice.ID, Amount: decimal.Zero},
		})
		assert.Error(t, err)
	})

	t.Run("duplicate member", func(t *testing.T) {
		err := svc.ReplaceSplits(ctx, txn.ID, []SplitEntry{
			{MemberID: alice.ID, Amount: decimal.RequireFromString("100")},
			{MemberID: alice.ID, Amount: decimal.RequireFromString("200")},
		})
		assert.Error(t, err)
	})

	t.Run("unknown member", func(t *testing.T) {
		err := svc.ReplaceSplits(ctx, txn.ID, []SplitEntry{
			{MemberID: 404, Amount: decimal.RequireFromString("100")},
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	// Every failure above rolled back; no splits landed.
	splits, err := st.ListSplits(ctx, txn.ID)
	require.NoError(t, err)
	assert.Empty(t, splits)
}

func TestUnsplit(t *testing.T) {
	st, svc := newTestService(t)
	ctx := context.Background()
	txn, alice, _ := seedFixture(t, st)

	assert.Error(t, svc.Unsplit(ctx, txn.ID), "nothing to unsplit yet")

	require.NoError(t, svc.ReplaceSplits(ctx, txn.ID, []SplitEntry{
		{MemberID: alice.ID, Amount: decimal.RequireFromString("400")},
	}))
	require.NoError(t, svc.Unsplit(ctx, txn.ID))

	got, err := st.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentUnassigned, got.Status)

	splits, err := st.ListSplits(ctx, txn.ID)
	require.NoError(t, err)
	assert.Empty(t, splits)
}

func TestTransferSingle(t *testing.T) {
	st, svc := newTestService(t)
	ctx := context.Background()
	txn, alice, bob := seedFixture(t, st)

	conf := 1.0
	require.NoError(t, st.UpdateAssignment(ctx, txn.ID, &alice.ID, domain.AssignmentManualAssigned, &conf, nil))

	userID := int64(7)
	record, err := svc.Transfer(ctx, txn.ID, Request{
		Mode:        domain.TransferSingle,
		ToMemberID:  bob.ID,
		InitiatedBy: &userID,
		Notes:       "keyed to wrong member",
	})
	require.NoError(t, err)
	require.NotNil(t, record.FromMemberID)
	assert.Equal(t, alice.ID, *record.FromMemberID)
	assert.True(t, record.TotalAmount.Equal(txn.Credit))

	got, err := st.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentTransferred, got.Status)
	require.NotNil(t, got.MemberID)
	assert.Equal(t, bob.ID, *got.MemberID)

	transfers, err := st.ListTransfers(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "keyed to wrong member", transfers[0].Notes)
	assert.EqualValues(t, bob.ID, transfers[0].Metadata["to_member_id"])

	logs, err := st.ListMatchLogs(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.MatchSourceManual, logs[0].Source)
	assert.Equal(t, "transfer", logs[0].MatchReason)
	require.NotNil(t, logs[0].UserID)
	assert.Equal(t, userID, *logs[0].UserID)
}

func TestTransferSingleRejectsSplitTransaction(t *testing.T) {
	st, svc := newTestService(t)
	ctx := context.Background()
	txn, alice, bob := seedFixture(t, st)

	require.NoError(t, svc.ReplaceSplits(ctx, txn.ID, []SplitEntry{
		{MemberID: alice.ID, Amount: decimal.RequireFromString("400")},
	}))

	_, err := svc.Transfer(ctx, txn.ID, Request{Mode: domain.TransferSingle, ToMemberID: bob.ID})
	assert.ErrorIs(t, err, domain.ErrHasSplits)
}

func TestTransferSplit(t *testing.T) {
	st, svc := newTestService(t)
	ctx := context.Background()
	txn, alice, bob := seedFixture(t, st)

	conf := 1.0
	require.NoError(t, st.UpdateAssignment(ctx, txn.ID, &alice.ID, domain.AssignmentManualAssigned, &conf, nil))

	record, err := svc.Transfer(ctx, txn.ID, Request{
		Mode: domain.TransferSplit,
		Entries: []SplitEntry{
			{MemberID: alice.ID, Amount: decimal.RequireFromString("250")},
			{MemberID: bob.ID, Amount: decimal.RequireFromString("750")},
		},
	})
	require.NoError(t, err)
	assert.True(t, record.TotalAmount.Equal(decimal.RequireFromString("1000")))

	got, err := st.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentTransferred, got.Status)
	assert.Nil(t, got.MemberID)

	splits, err := st.ListSplits(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, splits, 2)
	for _, sp := range splits {
		require.NotNil(t, sp.TransferID, "splits are linked to the transfer event")
		assert.Equal(t, record.ID, *sp.TransferID)
	}

	logs, err := st.ListMatchLogs(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2, "one manual log per recipient")
}

func TestTransferSplitSingleRecipient(t *testing.T) {
	st, svc := newTestService(t)
	ctx := context.Background()
	txn, alice, _ := seedFixture(t, st)

	_, err := svc.Transfer(ctx, txn.ID, Request{
		Mode: domain.TransferSplit,
		Entries: []SplitEntry{
			{MemberID: alice.ID, Amount: decimal.RequireFromString("1000")},
		},
	})
	require.NoError(t, err)

	got, err := st.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentTransferred, got.Status)
	require.NotNil(t, got.MemberID, "a lone recipient is attributed directly")
	assert.Equal(t, alice.ID, *got.MemberID)
}

func TestTransferRejectsArchivedAndBadMode(t *testing.T) {
	st, svc := newTestService(t)
	ctx := context.Background()
	txn, _, bob := seedFixture(t, st)

	_, err := svc.Transfer(ctx, txn.ID, Request{Mode: "sideways", ToMemberID: bob.ID})
	assert.Error(t, err)

	now := time.Now().UTC()
	require.NoError(t, st.SetArchived(ctx, txn.ID, true, "closed", &now))
	_, err = svc.Transfer(ctx, txn.ID, Request{Mode: domain.TransferSingle, ToMemberID: bob.ID})
	assert.ErrorIs(t, err, domain.ErrArchived)
}
