// Package commands wires the back-office CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coopfin/bankintake/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "bankintake",
		Short:   "Bank statement ingestion and member assignment",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "bankintake.db", "path to the sqlite database")
	rootCmd.PersistentFlags().StringVar(&opts.matcherConfig, "matcher-config", "", "path to a matcher YAML config (defaults to built-in)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newUploadCommand(opts),
		newIngestCommand(opts),
		newScanCommand(opts),
		newReanalyzeCommand(opts),
		newStatementsCommand(opts),
		newTransactionsCommand(opts),
		newAutoAssignCommand(opts),
		newAssignCommand(opts),
		newFlagCommand(opts),
		newUnassignCommand(opts),
		newArchiveCommand(opts),
		newUnarchiveCommand(opts),
		newSplitCommand(opts),
		newUnsplitCommand(opts),
		newTransferCommand(opts),
		newMemberCommand(opts),
	)

	return rootCmd
}
