package worker

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

// Syncer is the part of services.BankSyncer the worker drives.
type Syncer interface {
	SyncAccount(ctx context.Context, accountID string) (services.SyncOutcome, error)
	SyncAll(ctx context.Context) (services.SyncReport, error)
}

// SyncWorker turns sync request messages from AMQP into bank syncs.
type SyncWorker struct {
	syncer Syncer
	logger *applog.Logger
}

func NewSyncWorker(syncer Syncer, logger *applog.Logger) *SyncWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &SyncWorker{
		syncer: syncer,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleSyncRequest processes a single sync request message. Requests for
// unknown accounts are dropped. A failed single-account sync is returned so
// the consumer can requeue it; failures inside a sync-all are already
// recorded on each account and only logged.
func (w *SyncWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	w.logger.InfoContext(ctx, "Processing sync request",
		applog.FieldAccountID, msg.AccountID,
		"reason", msg.Reason,
		"requested_at", msg.Timestamp)

	if msg.All() {
		report, err := w.syncer.SyncAll(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			w.logger.WarnContext(ctx, "Some accounts failed to sync",
				"failed", report.Failed,
				applog.FieldError, err)
		}
		w.logger.InfoContext(ctx, "Sync-all completed",
			"accounts", len(report.Accounts),
			applog.FieldImported, report.Imported,
			applog.FieldSkipped, report.Skipped,
			"failed", report.Failed)
		return nil
	}

	out, err := w.syncer.SyncAccount(ctx, msg.AccountID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Dropping sync request for unknown account",
			applog.FieldAccountID, msg.AccountID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync account %s: %w", msg.AccountID, err)
	}

	w.logger.InfoContext(ctx, "Successfully synced account",
		applog.FieldAccountID, msg.AccountID,
		applog.FieldImported, out.Result.Imported,
		applog.FieldSkipped, out.Result.Skipped)
	return nil
}
