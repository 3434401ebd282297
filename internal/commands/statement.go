package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/ingest"
	"github.com/coopfin/bankintake/internal/scanner"
	"github.com/coopfin/bankintake/internal/store"
	"github.com/coopfin/bankintake/internal/ui"
)

func newUploadCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Register statement files for ingestion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			for _, path := range args {
				stmt, err := e.uploader.Upload(cmd.Context(), path)
				if errors.Is(err, ingest.ErrDuplicateUpload) {
					ui.Warning(err.Error())
					continue
				}
				if err != nil {
					return err
				}
				ui.Success(fmt.Sprintf("registered %s as statement %d", stmt.Filename, stmt.ID))
			}
			return nil
		},
	}
}

func newIngestCommand(opts *globalOptions) *cobra.Command {
	var reprocess bool

	cmd := &cobra.Command{
		Use:   "ingest [statement-id]...",
		Short: "Process uploaded statements into transactions",
		Long: "Process the named statements, or every statement still in " +
			"uploaded status when no IDs are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			ids, err := resolveStatementIDs(cmd, e, args)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				ui.Info("nothing to ingest")
				return nil
			}

			for i, id := range ids {
				ui.Step(i+1, len(ids), fmt.Sprintf("statement %d", id))
				var result *ingest.Result
				if reprocess {
					result, err = e.pipeline.Reprocess(cmd.Context(), id)
				} else {
					result, err = e.pipeline.Process(cmd.Context(), id)
				}
				if err != nil {
					ui.Error(err.Error())
					continue
				}
				ui.Success(fmt.Sprintf("run %s: %d rows, %d persisted, %d skipped",
					result.RunID, result.TotalRows, result.Persisted, result.Skipped))
				for _, w := range result.Warnings {
					ui.Warning(w)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reprocess, "reprocess", false, "wipe and re-ingest already processed statements")
	return cmd
}

func resolveStatementIDs(cmd *cobra.Command, e *env, args []string) ([]int64, error) {
	if len(args) > 0 {
		return parseIDs(args)
	}
	stmts, err := e.store.ListStatements(cmd.Context(), domain.StatementUploaded)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(stmts))
	for i, s := range stmts {
		ids[i] = s.ID
	}
	return ids, nil
}

func newScanCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <directory>",
		Short: "Find, register and ingest statement files under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			results, err := scanner.New(args[0]).Scan()
			if err != nil {
				return err
			}
			if len(results) == 0 {
				ui.Info("no statement files found")
				return nil
			}
			ui.Header(fmt.Sprintf("Found %d statement files", len(results)))

			for i, r := range results {
				ui.Step(i+1, len(results), r.Path)
				stmt, err := e.uploader.Upload(cmd.Context(), r.Path)
				if errors.Is(err, ingest.ErrDuplicateUpload) {
					ui.Warning(err.Error())
					continue
				}
				if err != nil {
					return err
				}
				result, err := e.pipeline.Process(cmd.Context(), stmt.ID)
				if err != nil {
					ui.Error(err.Error())
					continue
				}
				ui.Success(fmt.Sprintf("statement %d: %d persisted, %d skipped",
					stmt.ID, result.Persisted, result.Skipped))
			}
			return nil
		},
	}
}

func newReanalyzeCommand(opts *globalOptions) *cobra.Command {
	var statementID int64

	cmd := &cobra.Command{
		Use:   "reanalyze",
		Short: "Recompute duplicate verdicts across stored transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			var scope *int64
			if statementID > 0 {
				scope = &statementID
			}
			report, err := e.reanalyzer.Run(cmd.Context(), scope)
			if err != nil {
				return err
			}

			ui.Success(fmt.Sprintf("cleared %d verdicts, reset %d statuses", report.RecordsCleared, report.StatusesReset))
			ui.Success(fmt.Sprintf("demoted %d (%d cross-statement, %d intra-statement)",
				report.Demoted(), report.CrossStatement, report.IntraStatement))
			if report.AuditFailures > 0 {
				ui.Warning(fmt.Sprintf("%d demotions skipped, see logs", report.AuditFailures))
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&statementID, "statement", 0, "limit reanalysis to one statement")
	return cmd
}

func newStatementsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "statements",
		Short: "List uploaded statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			stmts, err := e.store.ListStatements(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range stmts {
				line := fmt.Sprintf("%4d  %-12s %s", s.ID, s.Status, s.Filename)
				if s.ErrorMessage != "" {
					line += "  (" + s.ErrorMessage + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newTransactionsCommand(opts *globalOptions) *cobra.Command {
	var (
		statementID int64
		status      string
		archived    bool
		rowHash     string
	)

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List stored transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			var txns []*domain.Transaction
			if rowHash != "" {
				// Every copy of one fingerprinted row, keeper first.
				txns, err = e.store.TransactionsByHash(cmd.Context(), rowHash)
			} else {
				filter := store.TransactionFilter{Archived: &archived}
				if statementID > 0 {
					filter.StatementID = &statementID
				}
				if status != "" {
					as := domain.AssignmentStatus(status)
					if !domain.ValidateAssignmentStatus(as) {
						return fmt.Errorf("invalid assignment status: %s", status)
					}
					filter.Statuses = []domain.AssignmentStatus{as}
				}
				txns, err = e.store.ListTransactions(cmd.Context(), filter)
			}
			if err != nil {
				return err
			}
			for _, t := range txns {
				member := "-"
				if t.MemberID != nil {
					member = strconv.FormatInt(*t.MemberID, 10)
				}
				fmt.Printf("%6d  %s  %-15s %10s  m:%-5s %s\n",
					t.ID, t.TranDate.Format("2006-01-02"), t.Status,
					t.Credit.StringFixed(2), member, truncate(t.Particulars, 60))
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&statementID, "statement", 0, "limit to one statement")
	cmd.Flags().StringVar(&status, "status", "", "filter by assignment status")
	cmd.Flags().BoolVar(&archived, "archived", false, "show archived instead of live transactions")
	cmd.Flags().StringVar(&rowHash, "row-hash", "", "show every copy of one fingerprinted row")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, len(args))
	for i, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid ID %q", a)
		}
		ids[i] = id
	}
	return ids, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
