package services

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"fintrack/internal/catalog"
	"fintrack/internal/core"
)

var jan20 = core.NewDate(2024, 1, 20)

func tx(typ core.TransactionType, cents int64, cat string, d core.Date) core.Transaction {
	return core.Transaction{
		Type:        typ,
		Amount:      core.Money{Cents: cents},
		Description: string(typ),
		CategoryID:  cat,
		Date:        d,
	}
}

func TestSummarizeMonth(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Income, 100000, "7", core.NewDate(2024, 1, 5)),
		tx(core.Expense, 5000, "1", core.NewDate(2024, 1, 10)),
		// One day outside the month on each side.
		tx(core.Expense, 9999, "1", core.NewDate(2023, 12, 31)),
		tx(core.Income, 7777, "7", core.NewDate(2024, 2, 1)),
	}
	got, err := Summarize(txs, core.PeriodMonth, jan20)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got.TotalIncome.Cents != 100000 || got.TotalExpense.Cents != 5000 || got.Balance.Cents != 95000 {
		t.Fatalf("totals = %+v", got)
	}
	if got.SavingsRate != 95.0 {
		t.Fatalf("SavingsRate = %v, want 95", got.SavingsRate)
	}
}

func TestSummarizePeriods(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Income, 1000, "7", core.NewDate(2024, 1, 5)),
		tx(core.Income, 2000, "7", core.NewDate(2024, 6, 5)),
		tx(core.Income, 4000, "7", core.NewDate(2023, 6, 5)),
	}
	tests := []struct {
		period core.Period
		income int64
	}{
		{core.PeriodMonth, 1000},
		{core.PeriodYear, 3000},
		{core.PeriodAll, 7000},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			got, err := Summarize(txs, tt.period, jan20)
			if err != nil {
				t.Fatalf("Summarize: %v", err)
			}
			if got.TotalIncome.Cents != tt.income {
				t.Errorf("income = %d, want %d", got.TotalIncome.Cents, tt.income)
			}
			if got.SavingsRate != 100 {
				t.Errorf("SavingsRate = %v", got.SavingsRate)
			}
		})
	}

	if _, err := Summarize(txs, "week", jan20); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for unknown selector, got %v", err)
	}
}

func TestSummarizeNoIncome(t *testing.T) {
	got, err := Summarize([]core.Transaction{tx(core.Expense, 500, "1", jan20)}, core.PeriodMonth, jan20)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got.SavingsRate != 0 || math.IsNaN(got.SavingsRate) {
		t.Fatalf("SavingsRate = %v, want 0", got.SavingsRate)
	}
	if got.Balance.Cents != -500 {
		t.Fatalf("Balance = %d", got.Balance.Cents)
	}

	empty, err := Summarize(nil, core.PeriodAll, jan20)
	if err != nil || empty.SavingsRate != 0 || !empty.Balance.IsZero() {
		t.Fatalf("empty summary = %+v, %v", empty, err)
	}
}

func TestSummarizeNegativeSavingsRate(t *testing.T) {
	txs := []core.Transaction{
		tx(core.Income, 10000, "7", jan20),
		tx(core.Expense, 15000, "1", jan20),
	}
	got, _ := Summarize(txs, core.PeriodMonth, jan20)
	if got.SavingsRate != -50 {
		t.Fatalf("SavingsRate = %v, want -50", got.SavingsRate)
	}
}

func TestEvaluateBudgetMonthly(t *testing.T) {
	b := core.Budget{ID: "b1", CategoryID: "1", Amount: core.Money{Cents: 10000}, Period: core.Monthly}
	txs := []core.Transaction{
		tx(core.Expense, 3000, "1", core.NewDate(2024, 1, 2)),
		tx(core.Expense, 2000, "1", core.NewDate(2024, 1, 19)),
		tx(core.Expense, 4000, "2", core.NewDate(2024, 1, 19)),  // other category
		tx(core.Income, 8000, "1", core.NewDate(2024, 1, 19)),   // income never counts
		tx(core.Expense, 6000, "1", core.NewDate(2023, 12, 31)), // outside window
	}
	st, err := EvaluateBudget(b, txs, jan20)
	if err != nil {
		t.Fatalf("EvaluateBudget: %v", err)
	}
	if st.Spent.Cents != 5000 || st.Percentage != 50 {
		t.Fatalf("spent=%d pct=%v, want 5000/50", st.Spent.Cents, st.Percentage)
	}
	if st.Remaining.Cents != 5000 || st.OverBudget || st.Degenerate {
		t.Fatalf("unexpected status: %+v", st)
	}
	if !st.WindowStart.Equal(core.NewDate(2024, 1, 1)) || !st.WindowEnd.Equal(core.NewDate(2024, 1, 31)) {
		t.Fatalf("window = %s..%s", st.WindowStart, st.WindowEnd)
	}
}

func TestEvaluateBudgetWeekly(t *testing.T) {
	b := core.Budget{ID: "w", CategoryID: "1", Amount: core.Money{Cents: 1000}, Period: core.Weekly}
	txs := []core.Transaction{
		tx(core.Expense, 700, "1", core.NewDate(2024, 1, 13)), // previous Saturday
		tx(core.Expense, 600, "1", core.NewDate(2024, 1, 14)), // Sunday
		tx(core.Expense, 900, "1", core.NewDate(2024, 1, 17)),
	}
	st, err := EvaluateBudget(b, txs, core.NewDate(2024, 1, 17))
	if err != nil {
		t.Fatalf("EvaluateBudget: %v", err)
	}
	if st.Spent.Cents != 1500 || st.Percentage != 150 || !st.OverBudget {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Remaining.Cents != -500 {
		t.Fatalf("Remaining = %d", st.Remaining.Cents)
	}
}

func TestEvaluateBudgetZeroAmount(t *testing.T) {
	b := core.Budget{ID: "z", CategoryID: "1", Amount: core.Money{}, Period: core.Yearly}
	st, err := EvaluateBudget(b, []core.Transaction{tx(core.Expense, 100, "1", jan20)}, jan20)
	if err != nil {
		t.Fatalf("EvaluateBudget: %v", err)
	}
	if !st.Degenerate || st.Percentage != 0 || math.IsInf(st.Percentage, 0) {
		t.Fatalf("zero budget must be flagged degenerate with 0%%, got %+v", st)
	}
	if st.Spent.Cents != 100 {
		t.Fatalf("Spent = %d", st.Spent.Cents)
	}
}

func TestEvaluateBudgetIsPure(t *testing.T) {
	b := core.Budget{ID: "b", CategoryID: "1", Amount: core.Money{Cents: 1000}, Period: core.Monthly}
	txs := []core.Transaction{tx(core.Expense, 250, "1", jan20)}
	first, _ := EvaluateBudget(b, txs, jan20)
	second, _ := EvaluateBudget(b, txs, jan20)
	if first != second {
		t.Fatalf("same inputs gave different results: %+v vs %+v", first, second)
	}
}

func TestExpenseByCategory(t *testing.T) {
	cats := catalog.NewCategories()
	cats.Restore(core.DefaultCategories())

	txs := []core.Transaction{
		tx(core.Expense, 1000, "2", jan20),
		tx(core.Expense, 500, "1", jan20),
		tx(core.Expense, 250, "2", jan20),
		tx(core.Expense, 300, "gone", jan20),
		tx(core.Expense, 200, "also-gone", jan20),
		tx(core.Income, 9999, "7", jan20),
		tx(core.Expense, 4444, "1", core.NewDate(2023, 1, 1)),
	}
	got, err := ExpenseByCategory(txs, core.PeriodMonth, jan20, cats)
	if err != nil {
		t.Fatalf("ExpenseByCategory: %v", err)
	}
	want := []core.CategoryAmount{
		{CategoryID: "2", Name: "Transportation", Color: "#3498db", Amount: core.Money{Cents: 1250}},
		{CategoryID: "1", Name: "Food & Dining", Color: "#e74c3c", Amount: core.Money{Cents: 500}},
		{CategoryID: "", Name: core.UnknownCategoryName, Color: core.UnknownCategoryColor, Amount: core.Money{Cents: 500}},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slice %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRecentTransactions(t *testing.T) {
	base := time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC)
	a := tx(core.Expense, 1, "1", core.NewDate(2024, 1, 18))
	a.ID, a.CreatedAt = "a", base
	b := tx(core.Expense, 1, "1", core.NewDate(2024, 1, 19))
	b.ID, b.CreatedAt = "b", base
	c := tx(core.Expense, 1, "1", core.NewDate(2024, 1, 19))
	c.ID, c.CreatedAt = "c", base.Add(time.Minute)

	var ids []string
	for _, r := range RecentTransactions([]core.Transaction{a, b, c}, 2) {
		ids = append(ids, r.ID)
	}
	if !slices.Equal(ids, []string{"c", "b"}) {
		t.Fatalf("got %v", ids)
	}
	if all := RecentTransactions([]core.Transaction{a}, 10); len(all) != 1 {
		t.Fatalf("got %d", len(all))
	}
}
