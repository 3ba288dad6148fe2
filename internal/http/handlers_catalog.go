package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// Categories

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats := s.tracker.ListCategories()
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.tracker.GetCategory(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	c, err := s.tracker.AddCategory(r.Context(), req.toCategory())
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	c, err := s.tracker.UpdateCategory(r.Context(), chi.URLParam(r, "id"), req.toCategory())
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteCategory leaves transactions and budgets that reference the
// category untouched.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Budgets

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets := s.tracker.ListBudgets()
	if budgets == nil {
		budgets = []core.Budget{}
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	b, err := s.tracker.AddBudget(r.Context(), req.toBudget())
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	b, err := s.tracker.UpdateBudget(r.Context(), chi.URLParam(r, "id"), req.toBudget())
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteBudget(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBudgetStatus serves GET /api/budgets/{id}/status?now=YYYY-MM-DD.
func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	now, err := parseNow(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	st, err := s.tracker.GetBudgetStatus(r.Context(), chi.URLParam(r, "id"), now)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListBudgetStatuses(w http.ResponseWriter, r *http.Request) {
	now, err := parseNow(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	statuses, err := s.tracker.ListBudgetStatuses(r.Context(), now)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}
