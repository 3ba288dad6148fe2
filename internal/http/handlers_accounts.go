package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/amqp"
	"fintrack/internal/banksync/plaid"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

type statusResponse struct {
	Status string `json:"status"`
}

type linkTokenResponse struct {
	LinkToken string `json:"linkToken"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.tracker.ListAccounts()
	if accounts == nil {
		accounts = []core.BankAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.tracker.GetAccount(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// handleDisconnectAccount forgets the account; its transactions stay.
func (s *Server) handleDisconnectAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DisconnectAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSyncAccount syncs one account inline and returns the outcome.
func (s *Server) handleSyncAccount(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, r, applog.OpSync, errUnsupported)
		return
	}
	out, err := s.syncer.SyncAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, applog.OpSync, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSyncAll queues a sync of every connected account when a broker is
// configured, and otherwise runs it inline.
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	s.syncAll(w, r, amqp.ReasonManual)
}

func (s *Server) syncAll(w http.ResponseWriter, r *http.Request, reason string) {
	if s.syncer == nil {
		writeError(w, r, applog.OpSync, errUnsupported)
		return
	}
	if s.enqueue(r.Context(), reason) {
		writeJSON(w, http.StatusAccepted, statusResponse{Status: "queued"})
		return
	}
	// Per-account failures are reported in the body, not as an error status.
	report, err := s.syncer.SyncAll(r.Context())
	if err != nil {
		if ctxErr := r.Context().Err(); ctxErr != nil {
			writeError(w, r, applog.OpSync, ctxErr)
			return
		}
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Some accounts failed to sync",
			"failed", report.Failed,
			applog.FieldError, err)
	}
	if report.Accounts == nil {
		report.Accounts = []services.SyncOutcome{}
	}
	writeJSON(w, http.StatusOK, report)
}

// enqueue reports whether the request reached the broker.
func (s *Server) enqueue(ctx context.Context, reason string) bool {
	if s.requester == nil {
		return false
	}
	if err := s.requester.RequestSync(ctx, "", reason); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Failed to queue sync request, syncing inline",
			applog.FieldError, err,
			"reason", reason)
		return false
	}
	return true
}

func (s *Server) handleCreateLinkToken(w http.ResponseWriter, r *http.Request) {
	if s.linker == nil {
		writeError(w, r, applog.OpCreate, errUnsupported)
		return
	}
	var req linkTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	token, err := s.linker.CreateLinkToken(r.Context(), sanitizeInput(req.UserID))
	if err != nil {
		writeError(w, r, applog.OpCreate, asGatewayError(err))
		return
	}
	writeJSON(w, http.StatusOK, linkTokenResponse{LinkToken: token})
}

// handleExchangeToken completes a link flow and records the provider's
// accounts as connected.
func (s *Server) handleExchangeToken(w http.ResponseWriter, r *http.Request) {
	if s.linker == nil {
		writeError(w, r, applog.OpCreate, errUnsupported)
		return
	}
	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	updates, err := s.linker.ExchangePublicToken(r.Context(), sanitizeInput(req.PublicToken))
	if err != nil {
		writeError(w, r, applog.OpCreate, asGatewayError(err))
		return
	}
	accounts, err := s.tracker.LinkAccounts(r.Context(), updates)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	if accounts == nil {
		accounts = []core.BankAccount{}
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Accounts linked", "accounts", len(accounts))
	writeJSON(w, http.StatusCreated, accounts)
}

// handleWebhook accepts provider webhooks. Only transaction updates start
// a sync; anything else is acknowledged and ignored.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var hook plaid.Webhook
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&hook); err != nil {
		writeError(w, r, applog.OpSync, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}
	logger := applog.FromContext(r.Context())
	if !hook.TriggersSync() {
		logger.DebugContext(r.Context(), "Ignoring webhook",
			"webhook_type", hook.WebhookType,
			"webhook_code", hook.WebhookCode)
		writeJSON(w, http.StatusOK, statusResponse{Status: "ignored"})
		return
	}
	logger.InfoContext(r.Context(), "Webhook triggered sync",
		"webhook_type", hook.WebhookType,
		"webhook_code", hook.WebhookCode,
		"item_id", hook.ItemID)
	s.syncAll(w, r, amqp.ReasonWebhook)
}

// asGatewayError maps provider failures to ExternalSync; validation errors
// pass through.
func asGatewayError(err error) error {
	if errors.Is(err, core.ErrValidation) || errors.Is(err, core.ErrExternalSync) {
		return err
	}
	return &core.ExternalSyncError{Err: err}
}
