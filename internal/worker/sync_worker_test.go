package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/banksync/demo"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/store/memory"
)

func newWorker(t *testing.T) (*SyncWorker, *services.Tracker, *demo.Gateway) {
	t.Helper()
	ctx := context.Background()
	tr, err := services.Open(ctx, memory.New(), services.TrackerOptions{Logger: applog.Discard()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := tr.LinkAccounts(ctx, demo.Accounts); err != nil {
		t.Fatalf("LinkAccounts() error = %v", err)
	}

	gw := demo.New()
	cfg := services.DefaultBankSyncerConfig()
	cfg.MaxRetries = 1
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	syncer := services.NewBankSyncer(tr, gw, nil, cfg, applog.Discard())
	return NewSyncWorker(syncer, nil), tr, gw
}

func TestHandleSyncRequest_SingleAccount(t *testing.T) {
	w, tr, _ := newWorker(t)
	ctx := context.Background()
	msg := amqp.NewSyncRequestMessage("acc_1", amqp.ReasonWebhook)

	if err := w.HandleSyncRequest(ctx, msg); err != nil {
		t.Fatalf("HandleSyncRequest() error = %v", err)
	}
	if got := len(tr.RecentTransactions(10)); got != 3 {
		t.Fatalf("transactions after first sync = %d, want 3", got)
	}

	// Redelivery is harmless: the ledger dedups the same rows.
	if err := w.HandleSyncRequest(ctx, msg); err != nil {
		t.Fatalf("HandleSyncRequest() second call error = %v", err)
	}
	if got := len(tr.RecentTransactions(10)); got != 3 {
		t.Errorf("transactions after redelivery = %d, want 3", got)
	}

	acc, err := tr.GetAccount("acc_1")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Status != core.StatusConnected {
		t.Errorf("status = %s, want connected", acc.Status)
	}
}

func TestHandleSyncRequest_UnknownAccountIsDropped(t *testing.T) {
	w, _, _ := newWorker(t)
	msg := amqp.NewSyncRequestMessage("nope", amqp.ReasonManual)
	if err := w.HandleSyncRequest(context.Background(), msg); err != nil {
		t.Errorf("HandleSyncRequest() error = %v, want nil", err)
	}
}

func TestHandleSyncRequest_GatewayFailure(t *testing.T) {
	w, tr, gw := newWorker(t)
	gw.FailNext(10)

	err := w.HandleSyncRequest(context.Background(), amqp.NewSyncRequestMessage("acc_2", amqp.ReasonManual))
	if !errors.Is(err, core.ErrExternalSync) {
		t.Fatalf("HandleSyncRequest() error = %v, want external sync error", err)
	}
	acc, _ := tr.GetAccount("acc_2")
	if acc.Status != core.StatusError {
		t.Errorf("status = %s, want error", acc.Status)
	}
	if got := len(tr.RecentTransactions(10)); got != 0 {
		t.Errorf("ledger changed on failure: %d transactions", got)
	}
}

func TestHandleSyncRequest_All(t *testing.T) {
	w, tr, gw := newWorker(t)
	gw.FailNext(2)

	if err := w.HandleSyncRequest(context.Background(), amqp.NewSyncRequestMessage("", amqp.ReasonSchedule)); err != nil {
		t.Fatalf("HandleSyncRequest() error = %v", err)
	}
	// Every demo account reports the same three rows; dedup keeps one copy.
	if got := len(tr.RecentTransactions(10)); got != 3 {
		t.Errorf("transactions = %d, want 3", got)
	}
}

func TestHandleSyncRequest_CancelledContext(t *testing.T) {
	w, _, _ := newWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.HandleSyncRequest(ctx, amqp.NewSyncRequestMessage("", amqp.ReasonSchedule)); !errors.Is(err, context.Canceled) {
		t.Errorf("HandleSyncRequest() error = %v, want context.Canceled", err)
	}
}
