package http

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

// handleListTransactions serves GET /api/transactions with the optional
// filters q, category, type, from and to. Results are sorted by date,
// newest first.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	seq, err := s.tracker.QueryTransactions(r.Context(), f)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	txs := slices.Collect(seq)
	slices.SortStableFunc(txs, services.NewestFirst)
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	txs := s.tracker.RecentTransactions(parseLimit(r.URL.Query()))
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.tracker.GetTransaction(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	tx, err := s.tracker.AddTransaction(r.Context(), req.toTransaction(s.tracker.Today()))
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	tx, err := s.tracker.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), req.toTransaction(s.tracker.Today()))
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
