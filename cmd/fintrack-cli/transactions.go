package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/services"
)

// filterFlags binds the ledger query flags shared by list and export.
type filterFlags struct {
	search, category, typ, from, to string
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.search, "search", "s", "", "case-insensitive text in description or category name")
	fs.StringVarP(&f.category, "category", "c", "", "category ID")
	fs.StringVarP(&f.typ, "type", "t", "", "income or expense")
	fs.StringVar(&f.from, "from", "", "first date, inclusive (2006-01-02)")
	fs.StringVar(&f.to, "to", "", "last date, inclusive (2006-01-02)")
}

func (f *filterFlags) filter() (ledger.Filter, error) {
	out := ledger.Filter{
		Search:     f.search,
		CategoryID: f.category,
		Type:       core.TransactionType(f.typ),
	}
	var err error
	if f.from != "" {
		if out.From, err = core.ParseDate(f.from); err != nil {
			return ledger.Filter{}, fmt.Errorf("--from: %w", err)
		}
	}
	if f.to != "" {
		if out.To, err = core.ParseDate(f.to); err != nil {
			return ledger.Filter{}, fmt.Errorf("--to: %w", err)
		}
	}
	return out, nil
}

func (rt *runtime) queryTransactions(cmd *cobra.Command, flags *filterFlags) ([]core.Transaction, error) {
	f, err := flags.filter()
	if err != nil {
		return nil, err
	}
	seq, err := rt.app.Tracker.QueryTransactions(cmd.Context(), f)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

func transactionsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List, add and remove transactions",
	}
	cmd.AddCommand(listTransactionsCmd(rt), addTransactionCmd(rt), removeTransactionsCmd(rt))
	return cmd
}

func listTransactionsCmd(rt *runtime) *cobra.Command {
	var (
		flags filterFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			txs, err := rt.queryTransactions(cmd, &flags)
			if err != nil {
				return err
			}
			slices.SortStableFunc(txs, services.NewestFirst)
			if limit > 0 && len(txs) > limit {
				txs = txs[:limit]
			}

			out := cmd.OutOrStdout()
			if rt.jsonOut {
				if txs == nil {
					txs = []core.Transaction{}
				}
				return printJSON(out, txs)
			}
			tw := newTable(out, "ID", "DATE", "TYPE", "AMOUNT", "CATEGORY", "DESCRIPTION", "SOURCE")
			for _, tx := range txs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					tx.ID, tx.Date, tx.Type, tx.Amount,
					rt.app.Tracker.CategoryName(tx.CategoryID), tx.Description, tx.Source)
			}
			return tw.Flush()
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n transactions (0 = all)")
	return cmd
}

func addTransactionCmd(rt *runtime) *cobra.Command {
	var typ, amount, description, category, date string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a manual income or expense",
		Example: `  fintrack-cli transactions add -t expense -a 12.50 -d "Lunch" -c 1
  fintrack-cli transactions add -t income -a 2500 -d "March salary" -c 7 --date 2024-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := core.ParseMoney(amount)
			if err != nil {
				return err
			}
			d := rt.app.Tracker.Today()
			if date != "" {
				if d, err = core.ParseDate(date); err != nil {
					return err
				}
			}
			tx, err := rt.app.Tracker.AddTransaction(cmd.Context(), core.Transaction{
				Type:        core.TransactionType(typ),
				Amount:      m,
				Description: description,
				CategoryID:  category,
				Date:        d,
				Source:      core.SourceManual,
			})
			if err != nil {
				return err
			}
			if rt.jsonOut {
				return printJSON(cmd.OutOrStdout(), tx)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s %s (%s)\n", tx.Type, tx.Amount, tx.Description, tx.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "", "income or expense")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "positive amount, e.g. 12.50")
	cmd.Flags().StringVarP(&description, "description", "d", "", "description")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category ID")
	cmd.Flags().StringVar(&date, "date", "", "transaction date (2006-01-02); defaults to today")
	for _, name := range []string{"type", "amount", "description", "category"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func removeTransactionsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete transactions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := rt.app.Tracker.DeleteTransaction(cmd.Context(), id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d transaction(s)\n", len(args))
			return nil
		},
	}
}
