// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for budget windows. Each budget
// period (weekly, monthly, yearly) has its own strategy that maps "today" to
// the inclusive calendar range the budget is evaluated over.

package services

import (
	"fmt"

	"fintrack/internal/core"
)

// WindowStrategy computes the current window of a budget period.
type WindowStrategy interface {
	// Window returns the inclusive [start, end] range containing today.
	Window(today core.Date) (start, end core.Date)
}

// WeekWindow runs from the most recent Sunday through the next Saturday.
type WeekWindow struct{}

func (WeekWindow) Window(today core.Date) (core.Date, core.Date) {
	start := today.AddDays(-int(today.Weekday()))
	return start, start.AddDays(6)
}

// MonthWindow covers the first through the last day of today's month.
type MonthWindow struct{}

func (MonthWindow) Window(today core.Date) (core.Date, core.Date) {
	start := core.NewDate(today.Year(), today.Month(), 1)
	// Day 0 of the next month is the last day of this one.
	end := core.NewDate(today.Year(), today.Month()+1, 0)
	return start, end
}

// YearWindow covers Jan 1 through Dec 31.
type YearWindow struct{}

func (YearWindow) Window(today core.Date) (core.Date, core.Date) {
	return core.NewDate(today.Year(), 1, 1), core.NewDate(today.Year(), 12, 31)
}

// windowStrategies maps budget periods to their window strategy.
var windowStrategies = map[core.BudgetPeriod]WindowStrategy{
	core.Weekly:  WeekWindow{},
	core.Monthly: MonthWindow{},
	core.Yearly:  YearWindow{},
}

// GetWindowStrategy returns the strategy for a budget period.
func GetWindowStrategy(period core.BudgetPeriod) (WindowStrategy, error) {
	s, ok := windowStrategies[period]
	if !ok {
		return nil, fmt.Errorf("unknown budget period: %s", period)
	}
	return s, nil
}

// RegisterWindowStrategy installs a strategy for a custom period.
func RegisterWindowStrategy(period core.BudgetPeriod, s WindowStrategy) {
	windowStrategies[period] = s
}
