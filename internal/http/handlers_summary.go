package http

import (
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// handleSummary serves GET /api/summary?period=month|year|all.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	summary, err := s.tracker.GetPeriodSummary(r.Context(), period)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleExpenseByCategory serves GET /api/summary/categories?period=.
func (s *Server) handleExpenseByCategory(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	rows, err := s.tracker.ExpenseByCategory(r.Context(), period)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	if rows == nil {
		rows = []core.CategoryAmount{}
	}
	writeJSON(w, http.StatusOK, rows)
}
