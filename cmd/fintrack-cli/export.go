package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fintrack/internal/export"
)

func exportCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export transactions to CSV or Google Sheets",
	}
	cmd.AddCommand(exportCSVCmd(rt), exportSheetsCmd(rt))
	return cmd
}

func exportCSVCmd(rt *runtime) *cobra.Command {
	var (
		flags filterFlags
		path  string
	)
	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Write matching transactions as CSV",
		Example: `  fintrack-cli export csv > all.csv
  fintrack-cli export csv --type expense --from 2024-01-01 -o data/2024-expenses.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			txs, err := rt.queryTransactions(cmd, &flags)
			if err != nil {
				return err
			}
			rows := export.Rows(txs, rt.app.Tracker)
			if path == "" {
				return export.WriteCSV(cmd.OutOrStdout(), rows)
			}
			if err := export.WriteCSVFile(path, rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d row(s) to %s\n", len(rows), path)
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&path, "output", "o", "", "output file (default stdout)")
	return cmd
}

func exportSheetsCmd(rt *runtime) *cobra.Command {
	var flags filterFlags
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Replace the configured Google Sheet with matching transactions",
		Long: `Clears GOOGLE_SHEET_NAME in GOOGLE_SPREADSHEET_ID and writes a header row
followed by one row per transaction. Credentials come from
GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rt.app.Config
			if !cfg.SheetsEnabled() {
				return errors.New("GOOGLE_SPREADSHEET_ID is not set")
			}
			exporter, err := export.NewSheetsExporter(cmd.Context(), export.SheetsConfig{
				SpreadsheetID:   cfg.GoogleSpreadsheetID,
				SheetName:       cfg.GoogleSheetName,
				CredentialsJSON: cfg.GoogleServiceAccountJSON,
				CredentialsFile: cfg.GoogleServiceAccountFile,
			}, rt.app.Logger)
			if err != nil {
				return err
			}

			txs, err := rt.queryTransactions(cmd, &flags)
			if err != nil {
				return err
			}
			n, err := exporter.Export(cmd.Context(), export.Rows(txs, rt.app.Tracker))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d row(s) to sheet %q\n", n, cfg.GoogleSheetName)
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}
