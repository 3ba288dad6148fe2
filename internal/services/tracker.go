package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"fintrack/internal/banksync"
	"fintrack/internal/cache"
	"fintrack/internal/catalog"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
	"fintrack/internal/store"
)

// TrackerOptions configures Open.
type TrackerOptions struct {
	// Now is the clock; "today" is DateOf(Now()) in Now's location.
	Now func() time.Time

	// SeedCategories replaces the built-in defaults when the categories
	// collection has never been persisted.
	SeedCategories []core.Category

	// SummaryCacheSize bounds memoized period summaries. 0 uses a default;
	// negative disables the cache.
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration

	Logger *applog.Logger
}

// Tracker owns the ledger, the catalogs and their persistence. Mutations are
// serialized and become visible to readers only once persisted.
//
// Several trackers, e.g. the server and the sync worker, may share one
// repository. Reads reload when the store revision has moved, and a write
// based on an outdated revision is reapplied to the fresh state instead of
// overwriting it.
type Tracker struct {
	mu sync.RWMutex

	repo       store.Repository
	rev        int64
	ledger     *ledger.Ledger
	categories *catalog.Categories
	budgets    *catalog.Budgets
	accounts   *catalog.Accounts

	now       func() time.Time
	summaries *cache.LRUCache[core.PeriodSummary]
	logger    *applog.Logger
}

// Open loads the persisted state. When categories were never stored the
// default set is seeded and saved.
func Open(ctx context.Context, repo store.Repository, opts TrackerOptions) (*Tracker, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	t := &Tracker{
		repo:       repo,
		ledger:     ledger.New(ledger.WithClock(opts.Now)),
		categories: catalog.NewCategories(),
		budgets:    catalog.NewBudgets(),
		accounts:   catalog.NewAccounts(),
		now:        opts.Now,
		logger:     opts.Logger.WithComponent(applog.ComponentLedger),
	}
	switch {
	case opts.SummaryCacheSize == 0:
		t.summaries = cache.NewLRUCache[core.PeriodSummary](64, opts.SummaryCacheTTL)
	case opts.SummaryCacheSize > 0:
		t.summaries = cache.NewLRUCache[core.PeriodSummary](opts.SummaryCacheSize, opts.SummaryCacheTTL)
	}

	for attempt := 1; ; attempt++ {
		state, err := t.load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		if state.Has(store.Categories) {
			break
		}
		seed := opts.SeedCategories
		if len(seed) == 0 {
			seed = core.DefaultCategories()
		}
		t.categories.Restore(seed)
		err = t.persist(ctx, store.Categories)
		if err == nil {
			t.logger.InfoContext(ctx, "Seeded default categories", "count", len(seed))
			break
		}
		// Another process may have seeded first; reload and look again.
		if !errors.Is(err, store.ErrStale) || attempt == maxCommitAttempts {
			return nil, fmt.Errorf("seed categories: %w", err)
		}
	}

	t.logger.InfoContext(ctx, "Tracker opened",
		"transactions", t.ledger.Len(),
		"categories", t.categories.Len(),
		"budgets", t.budgets.Len(),
		"accounts", t.accounts.Len())
	return t, nil
}

// Close releases the repository.
func (t *Tracker) Close() error {
	return t.repo.Close()
}

// SummaryCache exposes the memo for registration with a cache.Manager.
// It is nil when caching is disabled.
func (t *Tracker) SummaryCache() *cache.LRUCache[core.PeriodSummary] {
	return t.summaries
}

// Today is the current calendar date in the clock's location.
func (t *Tracker) Today() core.Date {
	return core.DateOf(t.now())
}

// maxCommitAttempts bounds how often a write is reapplied after losing a
// race with another writer.
const maxCommitAttempts = 3

// load replaces every in-memory collection with the stored state.
func (t *Tracker) load(ctx context.Context) (store.State, error) {
	state, err := t.repo.Load(ctx)
	if err != nil {
		return store.State{}, err
	}
	t.ledger.Restore(state.Transactions)
	t.categories.Restore(state.Categories)
	t.budgets.Restore(state.Budgets)
	t.accounts.Restore(state.BankAccounts)
	t.rev = state.Revision
	return state, nil
}

// refreshLocked reloads when another writer has saved since the last load.
// The caller holds t.mu for writing.
func (t *Tracker) refreshLocked(ctx context.Context) error {
	rev, err := t.repo.Revision(ctx)
	if err != nil {
		return fmt.Errorf("read revision: %w", err)
	}
	if rev == t.rev {
		return nil
	}
	from := t.rev
	if _, err := t.load(ctx); err != nil {
		return fmt.Errorf("reload state: %w", err)
	}
	t.logger.DebugContext(ctx, "Reloaded state saved by another writer", "from_revision", from, "revision", t.rev)
	return nil
}

// rlock brings the state up to date and returns holding t.mu for reading.
func (t *Tracker) rlock(ctx context.Context) error {
	rev, err := t.repo.Revision(ctx)
	if err != nil {
		return fmt.Errorf("read revision: %w", err)
	}
	t.mu.RLock()
	if rev <= t.rev {
		return nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	err = t.refreshLocked(ctx)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.mu.RLock()
	return nil
}

// view is rlock for accessors without a context or error result. When the
// store cannot be reached the last loaded state is served.
func (t *Tracker) view() (unlock func()) {
	if err := t.rlock(context.Background()); err != nil {
		t.logger.Warn("Serving last loaded state", applog.FieldError, err)
		t.mu.RLock()
	}
	return t.mu.RUnlock
}

func (t *Tracker) snapshot() store.State {
	return store.State{
		Transactions: t.ledger.All(),
		Categories:   t.categories.List(),
		Budgets:      t.budgets.List(),
		BankAccounts: t.accounts.List(),
	}
}

func (t *Tracker) persist(ctx context.Context, cols ...store.Collection) error {
	s := t.snapshot()
	s.Revision = t.rev
	if err := t.repo.Save(ctx, s, cols...); err != nil {
		return fmt.Errorf("save %v: %w", cols, err)
	}
	t.rev++
	return nil
}

// commit runs mutate on the current state and persists cols. When either
// step fails the in-memory collections are rolled back to their prior
// contents. If another writer saved first, mutate runs again on the
// reloaded state, so it must derive everything from the collections.
func (t *Tracker) commit(ctx context.Context, mutate func() error, cols ...store.Collection) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for attempt := 1; ; attempt++ {
		if err := t.refreshLocked(ctx); err != nil {
			return err
		}
		before := t.snapshot()
		if err := mutate(); err != nil {
			t.rollback(before, cols)
			return err
		}
		err := t.persist(ctx, cols...)
		if err == nil {
			return nil
		}
		t.rollback(before, cols)
		if errors.Is(err, store.ErrStale) && attempt < maxCommitAttempts {
			t.logger.DebugContext(ctx, "Store changed during write, retrying", "attempt", attempt)
			continue
		}
		t.logger.ErrorContext(ctx, "Persist failed, changes rolled back", applog.FieldError, err)
		return err
	}
}

func (t *Tracker) rollback(before store.State, cols []store.Collection) {
	for _, c := range cols {
		switch c {
		case store.Transactions:
			t.ledger.Restore(before.Transactions)
		case store.Categories:
			t.categories.Restore(before.Categories)
		case store.Budgets:
			t.budgets.Restore(before.Budgets)
		case store.BankAccounts:
			t.accounts.Restore(before.BankAccounts)
		}
	}
}

// Transactions

func (t *Tracker) AddTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	var out core.Transaction
	err := t.commit(ctx, func() error {
		id, err := t.ledger.Add(tx)
		if err != nil {
			return err
		}
		out, err = t.ledger.Get(id)
		return err
	}, store.Transactions)
	if err != nil {
		return core.Transaction{}, err
	}
	t.logger.InfoContext(ctx, "Transaction added", applog.NewFields().
		WithTransaction(out.ID, string(out.Type), out.Amount.Cents, out.CategoryID, string(out.Source)).
		WithOperation(applog.OpCreate).ToSlice()...)
	return out, nil
}

// UpdateTransaction fully replaces an entry; a missing id is NotFound.
func (t *Tracker) UpdateTransaction(ctx context.Context, id string, tx core.Transaction) (core.Transaction, error) {
	var out core.Transaction
	err := t.commit(ctx, func() error {
		if err := t.ledger.Replace(id, tx); err != nil {
			return err
		}
		var err error
		out, err = t.ledger.Get(id)
		return err
	}, store.Transactions)
	return out, err
}

// DeleteTransaction removes an entry. Deleting a missing id succeeds.
func (t *Tracker) DeleteTransaction(ctx context.Context, id string) error {
	removed := false
	err := t.commit(ctx, func() error {
		removed = t.ledger.Remove(id)
		return nil
	}, store.Transactions)
	if err == nil && removed {
		t.logger.InfoContext(ctx, "Transaction deleted", applog.FieldTxID, id)
	}
	return err
}

func (t *Tracker) GetTransaction(id string) (core.Transaction, error) {
	defer t.view()()
	return t.ledger.Get(id)
}

// QueryTransactions returns a lazy, snapshotted sequence of matching entries.
func (t *Tracker) QueryTransactions(ctx context.Context, f ledger.Filter) (iter.Seq[core.Transaction], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := t.rlock(ctx); err != nil {
		return nil, err
	}
	defer t.mu.RUnlock()
	return t.ledger.Query(f, t.categories), nil
}

// ImportTransactions runs ImportBatch on candidates, e.g. from an OFX file
// given on the command line.
func (t *Tracker) ImportTransactions(ctx context.Context, candidates []core.Transaction) (ledger.ImportResult, error) {
	return t.ApplySync(ctx, banksync.Result{Transactions: candidates})
}

func (t *Tracker) RecentTransactions(n int) []core.Transaction {
	defer t.view()()
	return RecentTransactions(t.ledger.All(), n)
}

// Categories

func (t *Tracker) ListCategories() []core.Category {
	defer t.view()()
	return t.categories.List()
}

func (t *Tracker) GetCategory(id string) (core.Category, error) {
	defer t.view()()
	return t.categories.Get(id)
}

// CategoryName resolves id, yielding "Unknown" for dangling references. It
// reads the state as of the last refresh, which suits rendering rows that
// were just queried.
func (t *Tracker) CategoryName(id string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.categories.Name(id)
}

func (t *Tracker) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	var out core.Category
	err := t.commit(ctx, func() (err error) {
		out, err = t.categories.Add(c)
		return err
	}, store.Categories)
	return out, err
}

func (t *Tracker) UpdateCategory(ctx context.Context, id string, c core.Category) (core.Category, error) {
	var out core.Category
	err := t.commit(ctx, func() (err error) {
		out, err = t.categories.Replace(id, c)
		return err
	}, store.Categories)
	return out, err
}

// DeleteCategory never cascades: transactions and budgets keep the id.
func (t *Tracker) DeleteCategory(ctx context.Context, id string) error {
	return t.commit(ctx, func() error {
		t.categories.Remove(id)
		return nil
	}, store.Categories)
}

// Budgets

func (t *Tracker) ListBudgets() []core.Budget {
	defer t.view()()
	return t.budgets.List()
}

func (t *Tracker) AddBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	var out core.Budget
	err := t.commit(ctx, func() (err error) {
		out, err = t.budgets.Add(b)
		return err
	}, store.Budgets)
	return out, err
}

func (t *Tracker) UpdateBudget(ctx context.Context, id string, b core.Budget) (core.Budget, error) {
	var out core.Budget
	err := t.commit(ctx, func() (err error) {
		out, err = t.budgets.Replace(id, b)
		return err
	}, store.Budgets)
	return out, err
}

func (t *Tracker) DeleteBudget(ctx context.Context, id string) error {
	return t.commit(ctx, func() error {
		t.budgets.Remove(id)
		return nil
	}, store.Budgets)
}

// Accounts

func (t *Tracker) ListAccounts() []core.BankAccount {
	defer t.view()()
	return t.accounts.List()
}

func (t *Tracker) GetAccount(id string) (core.BankAccount, error) {
	defer t.view()()
	return t.accounts.Get(id)
}

// ConnectedAccounts lists accounts eligible for a sync-all run.
func (t *Tracker) ConnectedAccounts() []core.BankAccount {
	defer t.view()()
	return t.accounts.Connected()
}

// LinkAccounts records accounts returned by a provider link flow.
func (t *Tracker) LinkAccounts(ctx context.Context, updates []catalog.AccountUpdate) ([]core.BankAccount, error) {
	var out []core.BankAccount
	err := t.commit(ctx, func() error {
		out = out[:0]
		for _, u := range updates {
			if u.Status == "" {
				u.Status = core.StatusConnected
			}
			acc, err := t.accounts.Upsert(u)
			if err != nil {
				return err
			}
			out = append(out, acc)
		}
		return nil
	}, store.BankAccounts)
	return out, err
}

// DisconnectAccount forgets a linked account. Its transactions stay.
func (t *Tracker) DisconnectAccount(ctx context.Context, id string) error {
	return t.commit(ctx, func() error {
		t.accounts.Remove(id)
		return nil
	}, store.BankAccounts)
}

// MarkAccountStatus sets the status of a known account.
func (t *Tracker) MarkAccountStatus(ctx context.Context, id string, status core.AccountStatus) (core.BankAccount, error) {
	var out core.BankAccount
	err := t.commit(ctx, func() (err error) {
		out, err = t.accounts.SetStatus(id, status)
		return err
	}, store.BankAccounts)
	return out, err
}

// ApplySync applies a gateway result as one unit: the transaction batch is
// imported with dedup and the account updates are merged. If validation or
// persistence fails nothing changes.
func (t *Tracker) ApplySync(ctx context.Context, res banksync.Result) (ledger.ImportResult, error) {
	var out ledger.ImportResult
	cols := []store.Collection{store.Transactions}
	if len(res.Accounts) > 0 {
		cols = append(cols, store.BankAccounts)
	}
	err := t.commit(ctx, func() error {
		var err error
		out, err = t.ledger.ImportBatch(res.Transactions)
		if err != nil {
			return err
		}
		for _, u := range res.Accounts {
			if _, err := t.accounts.Upsert(u); err != nil {
				return err
			}
		}
		return nil
	}, cols...)
	if err != nil {
		return ledger.ImportResult{}, err
	}
	return out, nil
}

// Query surface

// GetPeriodSummary totals the selected period relative to today.
func (t *Tracker) GetPeriodSummary(ctx context.Context, period core.Period) (core.PeriodSummary, error) {
	if !period.Valid() {
		return core.PeriodSummary{}, core.NewValidationError("period", core.ErrInvalidPeriod)
	}
	if err := t.rlock(ctx); err != nil {
		return core.PeriodSummary{}, err
	}
	defer t.mu.RUnlock()

	today := t.Today()
	key := fmt.Sprintf("%s|%s|%d", period, today, t.ledger.Version())
	if t.summaries != nil {
		if s, ok := t.summaries.Get(key); ok {
			return s, nil
		}
	}
	s, err := Summarize(t.ledger.All(), period, today)
	if err != nil {
		return core.PeriodSummary{}, err
	}
	if t.summaries != nil {
		t.summaries.Set(key, s)
	}
	return s, nil
}

// ExpenseByCategory breaks the period's expenses down by category.
func (t *Tracker) ExpenseByCategory(ctx context.Context, period core.Period) ([]core.CategoryAmount, error) {
	if err := t.rlock(ctx); err != nil {
		return nil, err
	}
	defer t.mu.RUnlock()
	return ExpenseByCategory(t.ledger.All(), period, t.Today(), t.categories)
}

// GetBudgetStatus evaluates one budget in the window containing now.
func (t *Tracker) GetBudgetStatus(ctx context.Context, budgetID string, now time.Time) (core.BudgetStatus, error) {
	if err := t.rlock(ctx); err != nil {
		return core.BudgetStatus{}, err
	}
	defer t.mu.RUnlock()
	b, err := t.budgets.Get(budgetID)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	return EvaluateBudget(b, t.ledger.All(), core.DateOf(now))
}

// ListBudgetStatuses evaluates every budget at now, in budget order.
func (t *Tracker) ListBudgetStatuses(ctx context.Context, now time.Time) ([]core.BudgetStatus, error) {
	if err := t.rlock(ctx); err != nil {
		return nil, err
	}
	defer t.mu.RUnlock()
	txs := t.ledger.All()
	today := core.DateOf(now)
	budgets := t.budgets.List()
	out := make([]core.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		st, err := EvaluateBudget(b, txs, today)
		if err != nil {
			return nil, fmt.Errorf("budget %s: %w", b.ID, err)
		}
		out = append(out, st)
	}
	return out, nil
}
