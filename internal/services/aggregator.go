package services

import (
	"cmp"
	"errors"
	"slices"

	"fintrack/internal/core"
)

// CategoryLookup resolves display attributes of a category id.
type CategoryLookup interface {
	Name(id string) string
	Color(id string) string
	Get(id string) (core.Category, error)
}

// InPeriod reports whether d falls in the selected period relative to today.
// Membership compares calendar components so time zones never shift an
// entry across a boundary.
func InPeriod(d core.Date, period core.Period, today core.Date) bool {
	switch period {
	case core.PeriodMonth:
		return d.SameMonth(today)
	case core.PeriodYear:
		return d.Year() == today.Year()
	default:
		return true
	}
}

// Summarize totals income and expense for the period. SavingsRate is
// balance/income*100 and 0 when there is no income.
func Summarize(txs []core.Transaction, period core.Period, today core.Date) (core.PeriodSummary, error) {
	if !period.Valid() {
		return core.PeriodSummary{}, core.NewValidationError("period", core.ErrInvalidPeriod)
	}
	sum := core.PeriodSummary{Period: period}
	for _, tx := range txs {
		if !InPeriod(tx.Date, period, today) {
			continue
		}
		switch tx.Type {
		case core.Income:
			sum.TotalIncome = sum.TotalIncome.Add(tx.Amount)
		case core.Expense:
			sum.TotalExpense = sum.TotalExpense.Add(tx.Amount)
		}
	}
	sum.Balance = sum.TotalIncome.Sub(sum.TotalExpense)
	if sum.TotalIncome.Cents > 0 {
		rate, err := core.Percent(sum.Balance, sum.TotalIncome)
		if err != nil {
			return core.PeriodSummary{}, err
		}
		sum.SavingsRate = rate
	}
	return sum, nil
}

// EvaluateBudget computes spending against b in the window containing today.
// It depends only on its arguments.
func EvaluateBudget(b core.Budget, txs []core.Transaction, today core.Date) (core.BudgetStatus, error) {
	strategy, err := GetWindowStrategy(b.Period)
	if err != nil {
		return core.BudgetStatus{}, core.NewValidationError("period", core.ErrInvalidPeriod)
	}
	start, end := strategy.Window(today)

	st := core.BudgetStatus{
		BudgetID:    b.ID,
		CategoryID:  b.CategoryID,
		Period:      b.Period,
		WindowStart: start,
		WindowEnd:   end,
		Amount:      b.Amount,
	}
	for _, tx := range txs {
		if tx.Type != core.Expense || tx.CategoryID != b.CategoryID {
			continue
		}
		if tx.Date.Within(start, end) {
			st.Spent = st.Spent.Add(tx.Amount)
		}
	}
	st.Remaining = b.Amount.Sub(st.Spent)

	pct, err := core.Percent(st.Spent, b.Amount)
	switch {
	case errors.Is(err, core.ErrDivisionDegenerate):
		st.Degenerate = true
	case err != nil:
		return core.BudgetStatus{}, err
	default:
		st.Percentage = pct
		st.OverBudget = pct > 100
	}
	return st, nil
}

// ExpenseByCategory breaks the period's expenses down by category in order
// of first appearance. All dangling references share one "Unknown" slice.
func ExpenseByCategory(txs []core.Transaction, period core.Period, today core.Date, cats CategoryLookup) ([]core.CategoryAmount, error) {
	if !period.Valid() {
		return nil, core.NewValidationError("period", core.ErrInvalidPeriod)
	}
	var out []core.CategoryAmount
	pos := map[string]int{}
	for _, tx := range txs {
		if tx.Type != core.Expense || !InPeriod(tx.Date, period, today) {
			continue
		}
		key := tx.CategoryID
		if _, err := cats.Get(key); err != nil {
			key = ""
		}
		i, ok := pos[key]
		if !ok {
			i = len(out)
			pos[key] = i
			entry := core.CategoryAmount{
				CategoryID: key,
				Name:       core.UnknownCategoryName,
				Color:      core.UnknownCategoryColor,
			}
			if key != "" {
				entry.Name = cats.Name(key)
				entry.Color = cats.Color(key)
			}
			out = append(out, entry)
		}
		out[i].Amount = out[i].Amount.Add(tx.Amount)
	}
	return out, nil
}

// NewestFirst orders transactions by date, then creation time, descending.
func NewestFirst(a, b core.Transaction) int {
	if c := b.Date.Compare(a.Date.Time); c != 0 {
		return c
	}
	return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
}

// RecentTransactions returns up to n transactions, newest date first and
// newest CreatedAt first within a day.
func RecentTransactions(txs []core.Transaction, n int) []core.Transaction {
	sorted := slices.Clone(txs)
	slices.SortStableFunc(sorted, NewestFirst)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
