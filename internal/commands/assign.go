package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coopfin/bankintake/internal/ui"
)

func newAutoAssignCommand(opts *globalOptions) *cobra.Command {
	var statementID int64

	cmd := &cobra.Command{
		Use:   "autoassign",
		Short: "Match unassigned transactions against the member directory",
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
			report, err := e.assigner.AutoAssign(cmd.Context(), scope)
			if err != nil {
				return err
			}

			ui.Success(fmt.Sprintf("examined %d: %d assigned, %d drafted, %d ambiguous, %d unmatched",
				report.Examined, report.Assigned, report.Drafted,
				report.Ambiguous, report.Unmatched))
			return nil
		},
	}

	cmd.Flags().Int64Var(&statementID, "statement", 0, "limit to one statement")
	return cmd
}

func newAssignCommand(opts *globalOptions) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "assign <transaction-id> <member-id>",
		Short: "Manually attribute a transaction to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			var user *int64
			if userID > 0 {
				user = &userID
			}
			if err := e.assigner.Assign(cmd.Context(), ids[0], ids[1], user); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("transaction %d assigned to member %d", ids[0], ids[1]))
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "acting back-office user ID")
	return cmd
}

func newFlagCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flag <transaction-id>",
		Short: "Route a transaction to human review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.assigner.Flag(cmd.Context(), ids[0]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("transaction %d flagged", ids[0]))
			return nil
		},
	}
}

func newUnassignCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <transaction-id>",
		Short: "Clear a transaction's attribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.assigner.Unassign(cmd.Context(), ids[0]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("transaction %d unassigned", ids[0]))
			return nil
		},
	}
}

func newArchiveCommand(opts *globalOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "archive <transaction-id>...",
		Short: "Remove transactions from active contribution totals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.assigner.BulkArchive(cmd.Context(), ids, reason); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("archived %d transactions", len(ids)))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the transactions are being archived")
	return cmd
}

func newUnarchiveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <transaction-id>",
		Short: "Restore an archived transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.assigner.Unarchive(cmd.Context(), ids[0]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("transaction %d restored", ids[0]))
			return nil
		},
	}
}
