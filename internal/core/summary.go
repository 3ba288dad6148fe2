package core

// Period selects the aggregation window of a summary.
type Period string

const (
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

func (p Period) Valid() bool {
	return p == PeriodMonth || p == PeriodYear || p == PeriodAll
}

// PeriodSummary holds income/expense totals for one period.
// SavingsRate is 0 when TotalIncome is 0.
type PeriodSummary struct {
	Period       Period  `json:"period"`
	TotalIncome  Money   `json:"totalIncome"`
	TotalExpense Money   `json:"totalExpense"`
	Balance      Money   `json:"balance"`
	SavingsRate  float64 `json:"savingsRate"`
}

// BudgetStatus is the evaluated state of a budget in its current window.
// Percentage is raw and may exceed 100. When the cap is zero, Percentage is
// 0 and Degenerate is set.
type BudgetStatus struct {
	BudgetID    string       `json:"budgetId"`
	CategoryID  string       `json:"categoryId"`
	Period      BudgetPeriod `json:"period"`
	WindowStart Date         `json:"windowStart"`
	WindowEnd   Date         `json:"windowEnd"`
	Amount      Money        `json:"amount"`
	Spent       Money        `json:"spent"`
	Remaining   Money        `json:"remaining"`
	Percentage  float64      `json:"percentage"`
	OverBudget  bool         `json:"overBudget"`
	Degenerate  bool         `json:"degenerate,omitempty"`
}

// CategoryAmount is one slice of the expense-by-category breakdown.
type CategoryAmount struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Amount     Money  `json:"amount"`
}
