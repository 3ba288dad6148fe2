package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"fintrack/internal/banksync"
	"fintrack/internal/catalog"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
)

// BankSyncerConfig holds configuration for the bank syncer
type BankSyncerConfig struct {
	// Interval is how often every connected account is synced (default: 15m)
	Interval time.Duration

	// MaxRetries is how many times a failing gateway call is retried (default: 3)
	MaxRetries int

	// RetryBackoff is the first retry delay, doubled per attempt (default: 1s)
	RetryBackoff time.Duration

	// MaxBackoff caps the retry delay (default: 30s)
	MaxBackoff time.Duration

	// Concurrency bounds parallel account syncs in SyncAll (default: 4)
	Concurrency int

	// RunOnStart syncs once immediately when the loop starts
	RunOnStart bool
}

// DefaultBankSyncerConfig returns sensible defaults
func DefaultBankSyncerConfig() BankSyncerConfig {
	return BankSyncerConfig{
		Interval:     15 * time.Minute,
		MaxRetries:   3,
		RetryBackoff: time.Second,
		MaxBackoff:   30 * time.Second,
		Concurrency:  4,
		RunOnStart:   true,
	}
}

// Sync event statuses.
const (
	SyncCompleted = "completed"
	SyncFailed    = "failed"
)

// SyncEvent reports the outcome of one account sync.
type SyncEvent struct {
	AccountID string    `json:"accountId"`
	Gateway   string    `json:"gateway"`
	Status    string    `json:"status"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher receives sync events, e.g. to fan them out over AMQP.
type EventPublisher interface {
	PublishSyncEvent(ctx context.Context, ev SyncEvent) error
}

// SyncOutcome is the result of syncing one account.
type SyncOutcome struct {
	AccountID string              `json:"accountId"`
	Result    ledger.ImportResult `json:"result"`
	Account   core.BankAccount    `json:"account"`
	Error     string              `json:"error,omitempty"`
}

// SyncReport collects the outcomes of SyncAll.
type SyncReport struct {
	Accounts []SyncOutcome `json:"accounts"`
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
}

// BankSyncer pulls from a Gateway into a Tracker. At most one sync per
// account is in flight; concurrent callers for the same account share it.
type BankSyncer struct {
	tracker   *Tracker
	gateway   banksync.Gateway
	publisher EventPublisher
	config    BankSyncerConfig
	logger    *applog.Logger
	now       func() time.Time

	flight singleflight.Group

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBankSyncer creates a new bank syncer. publisher may be nil.
func NewBankSyncer(tracker *Tracker, gateway banksync.Gateway, publisher EventPublisher, config BankSyncerConfig, logger *applog.Logger) *BankSyncer {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &BankSyncer{
		tracker:   tracker,
		gateway:   gateway,
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(applog.ComponentSync),
		now:       time.Now,
	}
}

// Gateway returns the configured gateway.
func (s *BankSyncer) Gateway() banksync.Gateway {
	return s.gateway
}

// SyncAccount syncs one account. Unknown accounts are NotFound. Gateway or
// import failures set the account status to error, leave the ledger
// untouched and return a *core.ExternalSyncError.
func (s *BankSyncer) SyncAccount(ctx context.Context, accountID string) (SyncOutcome, error) {
	v, err, shared := s.flight.Do(accountID, func() (any, error) {
		return s.syncAccount(ctx, accountID)
	})
	if shared {
		s.logger.DebugContext(ctx, "Joined in-flight sync", applog.FieldAccountID, accountID)
	}
	out, _ := v.(SyncOutcome)
	return out, err
}

func (s *BankSyncer) syncAccount(ctx context.Context, accountID string) (SyncOutcome, error) {
	out := SyncOutcome{AccountID: accountID}
	current, err := s.tracker.GetAccount(accountID)
	if err != nil {
		return out, err
	}
	if _, err := s.tracker.MarkAccountStatus(ctx, accountID, core.StatusSyncing); err != nil {
		return out, fmt.Errorf("mark syncing: %w", err)
	}

	policy := banksync.RetryPolicy{
		MaxRetries:   s.config.MaxRetries,
		InitialDelay: s.config.RetryBackoff,
		MaxDelay:     s.config.MaxBackoff,
		RetryAll:     true,
	}
	res, err := banksync.WithRetry(ctx, policy, func(ctx context.Context) (banksync.Result, error) {
		return s.gateway.Sync(ctx, accountID)
	}, func(attempt int, err error, wait time.Duration) {
		s.logger.WarnContext(ctx, "Gateway sync failed, retrying",
			applog.FieldAccountID, accountID,
			applog.FieldGateway, s.gateway.Name(),
			applog.FieldAttempt, attempt,
			"retry_in", wait,
			applog.FieldError, err)
	})
	if err != nil {
		return out, s.fail(ctx, accountID, err)
	}

	res = s.normalize(accountID, current, res)
	imported, err := s.tracker.ApplySync(ctx, res)
	if err != nil {
		return out, s.fail(ctx, accountID, fmt.Errorf("apply sync: %w", err))
	}

	out.Result = imported
	out.Account, _ = s.tracker.GetAccount(accountID)
	s.logger.InfoContext(ctx, "Account synced", applog.NewFields().
		WithSync(accountID, s.gateway.Name(), imported.Imported, imported.Skipped).
		WithOperation(applog.OpSync).ToSlice()...)
	s.publish(ctx, SyncEvent{
		AccountID: accountID,
		Gateway:   s.gateway.Name(),
		Status:    SyncCompleted,
		Imported:  imported.Imported,
		Skipped:   imported.Skipped,
		Timestamp: s.now(),
	})
	return out, nil
}

// normalize pins the result to accountID and guarantees an update that
// marks the account connected with a fresh LastSync.
func (s *BankSyncer) normalize(accountID string, current core.BankAccount, res banksync.Result) banksync.Result {
	now := s.now()
	for i := range res.Transactions {
		if res.Transactions[i].AccountID == "" {
			res.Transactions[i].AccountID = accountID
		}
	}
	seen := false
	for i := range res.Accounts {
		if res.Accounts[i].AccountID != accountID {
			continue
		}
		seen = true
		res.Accounts[i].Status = core.StatusConnected
		if res.Accounts[i].LastSync.IsZero() {
			res.Accounts[i].LastSync = now
		}
	}
	if !seen {
		res.Accounts = append(res.Accounts, catalog.AccountUpdate{
			AccountID: accountID,
			Balance:   current.Balance,
			Status:    core.StatusConnected,
			LastSync:  now,
		})
	}
	return res
}

func (s *BankSyncer) fail(ctx context.Context, accountID string, cause error) error {
	syncErr := &core.ExternalSyncError{AccountID: accountID, Err: cause}
	if _, err := s.tracker.MarkAccountStatus(ctx, accountID, core.StatusError); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark account error", applog.FieldAccountID, accountID, applog.FieldError, err)
	}
	applog.LogError(ctx, s.logger, "Account sync failed", cause, applog.OpSync, applog.ErrorTypeExternal,
		applog.NewFields().WithSync(accountID, s.gateway.Name(), 0, 0))
	s.publish(ctx, SyncEvent{
		AccountID: accountID,
		Gateway:   s.gateway.Name(),
		Status:    SyncFailed,
		Error:     cause.Error(),
		Timestamp: s.now(),
	})
	return syncErr
}

func (s *BankSyncer) publish(ctx context.Context, ev SyncEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSyncEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish sync event", applog.FieldAccountID, ev.AccountID, applog.FieldError, err)
	}
}

// SyncAll syncs every connected account with bounded concurrency. A failing
// account does not stop the others; the returned error joins all failures.
func (s *BankSyncer) SyncAll(ctx context.Context) (SyncReport, error) {
	accounts := s.tracker.ConnectedAccounts()
	outcomes := make([]SyncOutcome, len(accounts))
	errs := make([]error, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, acc := range accounts {
		g.Go(func() error {
			out, err := s.SyncAccount(gctx, acc.ID)
			if err != nil {
				out.AccountID = acc.ID
				out.Error = err.Error()
				errs[i] = err
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	report := SyncReport{Accounts: outcomes}
	for _, o := range outcomes {
		report.Imported += o.Result.Imported
		report.Skipped += o.Result.Skipped
		if o.Error != "" {
			report.Failed++
		}
	}
	return report, errors.Join(errs...)
}

// Start begins the periodic sync loop. Returns an error if already running.
func (s *BankSyncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("bank syncer is already running")
	}
	if s.config.Interval <= 0 {
		s.mu.Unlock()
		return fmt.Errorf("bank syncer interval must be positive")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stop, done)

	s.logger.InfoContext(ctx, "Bank syncer started",
		"interval", s.config.Interval,
		applog.FieldGateway, s.gateway.Name())
	return nil
}

// Stop gracefully stops the loop and waits for the current tick to finish.
func (s *BankSyncer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stop, done := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stop)

	select {
	case <-done:
		s.logger.InfoContext(ctx, "Bank syncer stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Bank syncer stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the loop is currently running
func (s *BankSyncer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *BankSyncer) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.tick(ctx)
	}
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one SyncAll round. Failures are logged and the loop goes on.
func (s *BankSyncer) tick(ctx context.Context) {
	report, err := s.SyncAll(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Periodic sync finished with failures",
			"failed", report.Failed,
			applog.FieldError, err)
		return
	}
	s.logger.DebugContext(ctx, "Periodic sync finished",
		"accounts", len(report.Accounts),
		applog.FieldImported, report.Imported,
		applog.FieldSkipped, report.Skipped)
}
