package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/parser"
	"github.com/coopfin/bankintake/internal/store"
)

const sampleCSV = `Tran Date,Value Date,Particulars,Tran Code,Debit,Credit,Balance
01/03/2024,01/03/2024,MPS 254712345678 JOHN KAMAU,TJ45K7KL29,,"1,500.00","21,500.00"
05/03/2024,,BANK CHARGES,CHG1,150.00,,"21,350.00"
10/03/2024,,PAY BILL 25471***234 Acc. MARY WANJIKU,,,"2,000.00","23,350.00"
,,,,,,
`

func writeStatementFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestPipeline(t *testing.T) (*store.Store, *Uploader, *Pipeline) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return st, NewUploader(st), NewPipeline(st, NewRegistry(), NewCoordinator(), nil)
}

func TestUploadRejectsDuplicateContent(t *testing.T) {
	_, uploader, _ := newTestPipeline(t)
	ctx := context.Background()

	path := writeStatementFile(t, "march.csv", sampleCSV)
	first, err := uploader.Upload(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, domain.StatementUploaded, first.Status)
	assert.Len(t, first.FileHash, 64)

	// Same content under a different name is still a duplicate.
	copyPath := writeStatementFile(t, "march-copy.csv", sampleCSV)
	_, err = uploader.Upload(ctx, copyPath)
	assert.ErrorIs(t, err, ErrDuplicateUpload)
}

func TestProcessPersistsRows(t *testing.T) {
	st, uploader, pipeline := newTestPipeline(t)
	ctx := context.Background()

	path := writeStatementFile(t, "march.csv", sampleCSV)
	stmt, err := uploader.Upload(ctx, path)
	require.NoError(t, err)

	result, err := pipeline.Process(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, "csv", result.Source)
	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 3, result.Persisted)
	assert.Equal(t, 0, result.Skipped)
	assert.NotEmpty(t, result.RunID)

	got, err := st.GetStatement(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatementCompleted, got.Status)
	assert.Equal(t, result.RunID, got.Metadata["run_id"])

	txns, err := st.ListTransactions(ctx, store.TransactionFilter{StatementID: &stmt.ID})
	require.NoError(t, err)
	require.Len(t, txns, 3)

	mobile := txns[0]
	assert.Equal(t, domain.AssignmentUnassigned, mobile.Status)
	assert.Equal(t, "mpesa_bank", mobile.TransactionType)
	assert.Equal(t, []string{"254712345678"}, mobile.Phones)
	assert.Equal(t, "TJ45K7KL29", mobile.TransactionCode)
	assert.Len(t, mobile.RowHash, 64)
	assert.True(t, mobile.Credit.Equal(decimal.RequireFromString("1500.00")))

	charges := txns[1]
	assert.True(t, charges.Debit.Equal(decimal.RequireFromString("150.00")))
	assert.True(t, charges.Credit.IsZero(), "debit-only rows persist too")

	paybill := txns[2]
	assert.Equal(t, "mpesa_paybill", paybill.TransactionType)
}

func TestProcessIdenticalRowsGetIdenticalHashes(t *testing.T) {
	st, uploader, pipeline := newTestPipeline(t)
	ctx := context.Background()

	content := "Tran Date,Particulars,Credit\n" +
		"01/03/2024,MPS 254712345678 JOHN KAMAU,1500.00\n" +
		"01/03/2024,MPS  254712345678  JOHN KAMAU,1500.00\n"
	path := writeStatementFile(t, "dup.csv", content)
	stmt, err := uploader.Upload(ctx, path)
	require.NoError(t, err)

	_, err = pipeline.Process(ctx, stmt.ID)
	require.NoError(t, err)

	txns, err := st.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, txns[0].RowHash, txns[1].RowHash,
		"whitespace variations hash identically, both rows persist")
	assert.Equal(t, domain.AssignmentUnassigned, txns[1].Status,
		"ingestion never marks duplicates")
}

func TestProcessFailureMarksStatementFailed(t *testing.T) {
	st, uploader, pipeline := newTestPipeline(t)
	ctx := context.Background()

	path := writeStatementFile(t, "empty.csv", "Tran Date,Particulars,Credit\n")
	stmt, err := uploader.Upload(ctx, path)
	require.NoError(t, err)

	_, err = pipeline.Process(ctx, stmt.ID)
	require.Error(t, err)

	got, err := st.GetStatement(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatementFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
}

func TestProcessRejectsCompletedStatement(t *testing.T) {
	_, uploader, pipeline := newTestPipeline(t)
	ctx := context.Background()

	path := writeStatementFile(t, "march.csv", sampleCSV)
	stmt, err := uploader.Upload(ctx, path)
	require.NoError(t, err)

	_, err = pipeline.Process(ctx, stmt.ID)
	require.NoError(t, err)

	_, err = pipeline.Process(ctx, stmt.ID)
	assert.Error(t, err, "completed statements require Reprocess")
}

func TestReprocessReplacesRows(t *testing.T) {
	st, uploader, pipeline := newTestPipeline(t)
	ctx := context.Background()

	path := writeStatementFile(t, "march.csv", sampleCSV)
	stmt, err := uploader.Upload(ctx, path)
	require.NoError(t, err)
	_, err = pipeline.Process(ctx, stmt.ID)
	require.NoError(t, err)

	before, err := st.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)

	result, err := pipeline.Reprocess(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Persisted)

	after, err := st.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.NotEqual(t, before[0].ID, after[0].ID, "old rows are gone, new IDs issued")
}

func TestFailedStatementCanRetry(t *testing.T) {
	st, uploader, pipeline := newTestPipeline(t)
	ctx := context.Background()

	path := writeStatementFile(t, "march.csv", "Tran Date,Particulars,Credit\n")
	stmt, err := uploader.Upload(ctx, path)
	require.NoError(t, err)
	_, err = pipeline.Process(ctx, stmt.ID)
	require.Error(t, err)

	// Fix the file in place, then retry without re-uploading.
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	result, err := pipeline.Process(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Persisted)

	got, err := st.GetStatement(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatementCompleted, got.Status)
}

func TestRegistryFindSource(t *testing.T) {
	registry := NewRegistry()

	csvPath := writeStatementFile(t, "x.csv", sampleCSV)
	src, err := registry.FindSource(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "csv", src.Name())

	txtPath := writeStatementFile(t, "x.txt", "hello")
	_, err = registry.FindSource(txtPath)
	assert.Error(t, err)

	assert.Equal(t, []string{"csv", "ofx"}, registry.ListSources())
}

type stubSource struct{}

func (stubSource) Name() string { return "stub" }

func (stubSource) CanParse(path string, header []byte) bool {
	return strings.HasSuffix(path, ".stub")
}

func (stubSource) Parse(ctx context.Context, r io.Reader, meta parser.Metadata) ([]parser.RawRow, error) {
	return nil, nil
}

func TestRegistryRegisterCustomSource(t *testing.T) {
	registry := NewRegistry()
	registry.Register(stubSource{})

	path := writeStatementFile(t, "x.stub", "anything")
	src, err := registry.FindSource(path)
	require.NoError(t, err)
	assert.Equal(t, "stub", src.Name())
	assert.Equal(t, []string{"csv", "ofx", "stub"}, registry.ListSources())
}

func TestProcessDerivesStatementDate(t *testing.T) {
	st, uploader, pipeline := newTestPipeline(t)
	ctx := context.Background()

	path := writeStatementFile(t, "march.csv", sampleCSV)
	stmt, err := uploader.Upload(ctx, path)
	require.NoError(t, err)
	require.Nil(t, stmt.StatementDate)

	_, err = pipeline.Process(ctx, stmt.ID)
	require.NoError(t, err)

	got, err := st.GetStatement(ctx, stmt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StatementDate)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), *got.StatementDate,
		"period end is the latest transaction date on file")
}
