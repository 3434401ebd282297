package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/transfer"
	"github.com/coopfin/bankintake/internal/ui"
)

func newSplitCommand(opts *globalOptions) *cobra.Command {
	var entries []string

	cmd := &cobra.Command{
		Use:   "split <transaction-id>",
		Short: "Replace a transaction's splits",
		Long: "Replace every split on the transaction with the --entry " +
			"values. Entries are member:amount pairs, e.g. --entry 12:1500.00.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			parsed, err := parseSplitEntries(entries)
			if err != nil {
				return err
			}

			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.transfers.ReplaceSplits(cmd.Context(), ids[0], parsed); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("transaction %d split across %d members", ids[0], len(parsed)))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&entries, "entry", nil, "member:amount split entry (repeatable)")
	_ = cmd.MarkFlagRequired("entry")
	return cmd
}

func newUnsplitCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unsplit <transaction-id>",
		Short: "Remove a transaction's splits",
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

			if err := e.transfers.Unsplit(cmd.Context(), ids[0]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("transaction %d unsplit", ids[0]))
			return nil
		},
	}
}

func newTransferCommand(opts *globalOptions) *cobra.Command {
	var (
		toMember int64
		entries  []string
		userID   int64
		notes    string
	)

	cmd := &cobra.Command{
		Use:   "transfer <transaction-id>",
		Short: "Re-attribute a transaction",
		Long: "Transfer the whole transaction with --to, or distribute it " +
			"with repeated --entry member:amount pairs.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if (toMember > 0) == (len(entries) > 0) {
				return fmt.Errorf("exactly one of --to or --entry is required")
			}

			req := transfer.Request{Notes: notes}
			if userID > 0 {
				req.InitiatedBy = &userID
			}
			if toMember > 0 {
				req.Mode = domain.TransferSingle
				req.ToMemberID = toMember
			} else {
				req.Mode = domain.TransferSplit
				if req.Entries, err = parseSplitEntries(entries); err != nil {
					return err
				}
			}

			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			record, err := e.transfers.Transfer(cmd.Context(), ids[0], req)
			if err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("transfer %d recorded (%s, %s)",
				record.ID, record.Mode, record.TotalAmount.StringFixed(2)))
			return nil
		},
	}

	cmd.Flags().Int64Var(&toMember, "to", 0, "member to receive the whole transaction")
	cmd.Flags().StringArrayVar(&entries, "entry", nil, "member:amount split entry (repeatable)")
	cmd.Flags().Int64Var(&userID, "user", 0, "acting back-office user ID")
	cmd.Flags().StringVar(&notes, "notes", "", "reason for the transfer")
	return cmd
}

func parseSplitEntries(raw []string) ([]transfer.SplitEntry, error) {
	entries := make([]transfer.SplitEntry, 0, len(raw))
	for _, r := range raw {
		memberPart, amountPart, ok := strings.Cut(r, ":")
		if !ok {
			return nil, fmt.Errorf("invalid entry %q, want member:amount", r)
		}
		memberID, err := strconv.ParseInt(memberPart, 10, 64)
		if err != nil || memberID <= 0 {
			return nil, fmt.Errorf("invalid member ID in entry %q", r)
		}
		amount, err := decimal.NewFromString(amountPart)
		if err != nil {
			return nil, fmt.Errorf("invalid amount in entry %q: %w", r, err)
		}
		entries = append(entries, transfer.SplitEntry{MemberID: memberID, Amount: amount})
	}
	return entries, nil
}
