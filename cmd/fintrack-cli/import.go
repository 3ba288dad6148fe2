package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fintrack/internal/banksync/ofx"
	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/ledger"
)

func importOFXCmd(rt *runtime) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import-ofx <file>...",
		Short: "Import transactions from OFX/QFX statement files",
		Long: `Import every bank and credit card statement found in the given files.
Imported entries are tagged as bank transactions and deduplicated by
description and amount against the whole ledger.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				candidates []core.Transaction
				unreadable int
			)
			for _, path := range args {
				stmts, err := parseOFXFile(path)
				if err != nil {
					return err
				}
				for _, s := range stmts {
					candidates = append(candidates, s.Transactions...)
					unreadable += s.Skipped
				}
			}
			return rt.importCandidates(cmd, candidates, unreadable, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and report without saving")
	return cmd
}

func parseOFXFile(path string) ([]ofx.Statement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stmts, err := ofx.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stmts, nil
}

func importCSVCmd(rt *runtime) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import-csv <file>",
		Short: "Import transactions from a CSV file written by export csv",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := export.ReadCSV(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			candidates, err := export.Transactions(rows)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return rt.importCandidates(cmd, candidates, 0, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and report without saving")
	return cmd
}

func (rt *runtime) importCandidates(cmd *cobra.Command, candidates []core.Transaction, unreadable int, dryRun bool) error {
	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintf(out, "Parsed %d transaction(s), %d unreadable row(s); nothing saved\n", len(candidates), unreadable)
		return nil
	}
	res, err := rt.app.Tracker.ImportTransactions(cmd.Context(), candidates)
	if err != nil {
		return err
	}
	if rt.jsonOut {
		return printJSON(out, struct {
			ledger.ImportResult
			Unreadable int `json:"unreadable"`
		}{res, unreadable})
	}
	fmt.Fprintf(out, "Imported %d, skipped %d duplicate(s)", res.Imported, res.Skipped)
	if unreadable > 0 {
		fmt.Fprintf(out, ", %d unreadable row(s)", unreadable)
	}
	fmt.Fprintln(out)
	return nil
}
