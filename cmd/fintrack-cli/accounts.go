package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

func accountsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List linked bank accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts := rt.app.Tracker.ListAccounts()
			out := cmd.OutOrStdout()
			if rt.jsonOut {
				if accounts == nil {
					accounts = []core.BankAccount{}
				}
				return printJSON(out, accounts)
			}
			tw := newTable(out, "ID", "NAME", "INSTITUTION", "TYPE", "BALANCE", "STATUS", "LAST SYNC")
			for _, a := range accounts {
				last := "never"
				if !a.LastSync.IsZero() {
					last = a.LastSync.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.Name, a.Institution, a.Type, a.Balance, a.Status, last)
			}
			return tw.Flush()
		},
	}

	link := &cobra.Command{
		Use:   "link <public-token>",
		Short: "Exchange a provider public token and store the linked accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			linker := rt.app.Backend.Linker
			if linker == nil {
				return fmt.Errorf("bank gateway %q does not support account linking", rt.app.Config.BankGateway)
			}
			updates, err := linker.ExchangePublicToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			accounts, err := rt.app.Tracker.LinkAccounts(cmd.Context(), updates)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %d account(s)\n", len(accounts))
			return nil
		},
	}

	disconnect := &cobra.Command{
		Use:   "disconnect <id>",
		Short: "Forget a linked account; its transactions are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.app.Tracker.DisconnectAccount(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(link, disconnect)
	return cmd
}

func syncCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [account-id]",
		Short: "Pull new transactions from the bank gateway",
		Long: `Sync one account, or every connected account when no ID is given.
Transactions already in the ledger (same description and amount) are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				outcome, err := rt.app.Syncer.SyncAccount(ctx, args[0])
				if err != nil {
					return err
				}
				if rt.jsonOut {
					return printJSON(out, outcome)
				}
				fmt.Fprintf(out, "%s: imported %d, skipped %d\n",
					outcome.AccountID, outcome.Result.Imported, outcome.Result.Skipped)
				return nil
			}

			report, err := rt.app.Syncer.SyncAll(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if rt.jsonOut {
				if report.Accounts == nil {
					report.Accounts = []services.SyncOutcome{}
				}
				if perr := printJSON(out, report); perr != nil {
					return perr
				}
			} else {
				tw := newTable(out, "ACCOUNT", "IMPORTED", "SKIPPED", "ERROR")
				for _, o := range report.Accounts {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", o.AccountID, o.Result.Imported, o.Result.Skipped, o.Error)
				}
				if ferr := tw.Flush(); ferr != nil {
					return ferr
				}
				fmt.Fprintf(out, "%d account(s): imported %d, skipped %d, failed %d\n",
					len(report.Accounts), report.Imported, report.Skipped, report.Failed)
			}
			if err != nil {
				return errors.New("some accounts failed to sync")
			}
			return nil
		},
	}
}
