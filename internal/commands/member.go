package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/ui"
)

func newMemberCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Member directory operations",
	}
	cmd.AddCommand(newMemberAddCommand(opts), newMemberTotalCommand(opts))
	return cmd
}

func newMemberAddCommand(opts *globalOptions) *cobra.Command {
	var (
		name         string
		phone        string
		memberCode   string
		memberNumber string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a member to the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			m := &domain.Member{
				Name:         name,
				Phone:        phone,
				MemberCode:   memberCode,
				MemberNumber: memberNumber,
				IsActive:     true,
			}
			if err := e.store.InsertMember(cmd.Context(), m); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("member %d added", m.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "member name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&phone, "phone", "", "member phone number")
	cmd.Flags().StringVar(&memberCode, "code", "", "member code")
	cmd.Flags().StringVar(&memberNumber, "number", "", "member number")
	return cmd
}

func newMemberTotalCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "total <member-id>",
		Short: "Show a member's active contribution total",
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

			member, err := e.store.GetMember(cmd.Context(), ids[0])
			if err != nil {
				return err
			}
			total, err := e.store.ActiveContributionTotal(cmd.Context(), ids[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s: %s\n", member.Name, total.StringFixed(2))
			return nil
		},
	}
}
