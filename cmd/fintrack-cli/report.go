package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
)

func summaryCmd(rt *runtime) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show income, expenses and savings rate for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p := core.Period(period)
			sum, err := rt.app.Tracker.GetPeriodSummary(ctx, p)
			if err != nil {
				return err
			}
			byCategory, err := rt.app.Tracker.ExpenseByCategory(ctx, p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rt.jsonOut {
				return printJSON(out, struct {
					Summary    core.PeriodSummary    `json:"summary"`
					Categories []core.CategoryAmount `json:"categories"`
				}{sum, byCategory})
			}

			tw := newTable(out)
			fmt.Fprintf(tw, "Period\t%s\n", sum.Period)
			fmt.Fprintf(tw, "Income\t%s\n", sum.TotalIncome)
			fmt.Fprintf(tw, "Expenses\t%s\n", sum.TotalExpense)
			fmt.Fprintf(tw, "Balance\t%s\n", sum.Balance)
			fmt.Fprintf(tw, "Savings rate\t%.1f%%\n", sum.SavingsRate)
			if len(byCategory) > 0 {
				fmt.Fprintln(tw)
				fmt.Fprintln(tw, "CATEGORY\tSPENT")
				for _, c := range byCategory {
					fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Amount)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", string(core.PeriodMonth), "period to summarize (month, year, all)")
	return cmd
}

func budgetsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budgets",
		Short: "Show spending against each budget in its current window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := rt.app.Tracker.ListBudgetStatuses(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rt.jsonOut {
				if statuses == nil {
					statuses = []core.BudgetStatus{}
				}
				return printJSON(out, statuses)
			}
			tw := newTable(out, "ID", "CATEGORY", "PERIOD", "WINDOW", "BUDGET", "SPENT", "REMAINING", "USED")
			for _, s := range statuses {
				used := fmt.Sprintf("%.1f%%", s.Percentage)
				if s.OverBudget {
					used += " over"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s..%s\t%s\t%s\t%s\t%s\n",
					s.BudgetID, rt.app.Tracker.CategoryName(s.CategoryID), s.Period,
					s.WindowStart, s.WindowEnd, s.Amount, s.Spent, s.Remaining, used)
			}
			return tw.Flush()
		},
	}

	var categoryID, amount, period string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a budget for an expense category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := core.ParseMoney(amount)
			if err != nil {
				return err
			}
			b, err := rt.app.Tracker.AddBudget(cmd.Context(), core.Budget{
				CategoryID: categoryID,
				Amount:     m,
				Period:     core.BudgetPeriod(period),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created budget %s\n", b.ID)
			return nil
		},
	}
	add.Flags().StringVarP(&categoryID, "category", "c", "", "category ID")
	add.Flags().StringVarP(&amount, "amount", "a", "", "budget cap, e.g. 250.00")
	add.Flags().StringVar(&period, "period", string(core.Monthly), "budget window (weekly, monthly, yearly)")
	_ = add.MarkFlagRequired("category")
	_ = add.MarkFlagRequired("amount")

	rm := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete budgets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := rt.app.Tracker.DeleteBudget(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(add, rm)
	return cmd
}

func categoriesCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cats := rt.app.Tracker.ListCategories()
			out := cmd.OutOrStdout()
			if rt.jsonOut {
				return printJSON(out, cats)
			}
			tw := newTable(out, "ID", "NAME", "TYPE", "COLOR")
			for _, c := range cats {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, c.Color)
			}
			return tw.Flush()
		},
	}

	var name, typ, color string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.app.Tracker.AddCategory(cmd.Context(), core.Category{
				Name:  name,
				Type:  core.TransactionType(typ),
				Color: color,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created category %s\n", c.ID)
			return nil
		},
	}
	add.Flags().StringVarP(&name, "name", "n", "", "category name")
	add.Flags().StringVarP(&typ, "type", "t", string(core.Expense), "income or expense")
	add.Flags().StringVar(&color, "color", "#6B7280", "display color as #RRGGBB")
	_ = add.MarkFlagRequired("name")

	rm := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete categories; their transactions are kept",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := rt.app.Tracker.DeleteCategory(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(add, rm)
	return cmd
}
