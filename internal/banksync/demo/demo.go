// Package demo provides a deterministic bank gateway that simulates a
// linked institution. Every sync reports the same three recent
// transactions, so repeated syncs exercise the ledger's import dedup.
package demo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/banksync"
	"fintrack/internal/catalog"
	"fintrack/internal/core"
)

// Institution is the name reported for every demo account.
const Institution = "Chase"

// Accounts are the mock accounts offered by the link flow.
var Accounts = []catalog.AccountUpdate{
	{AccountID: "acc_1", Name: "Chase Total Checking", Institution: Institution, Type: "checking", Balance: core.Money{Cents: 254367}},
	{AccountID: "acc_2", Name: "Chase Freedom Credit Card", Institution: Institution, Type: "credit", Balance: core.Money{Cents: -125643}},
	{AccountID: "acc_3", Name: "Chase Savings", Institution: Institution, Type: "savings", Balance: core.Money{Cents: 875000}},
}

type sample struct {
	typ        core.TransactionType
	cents      int64
	desc       string
	categoryID string
	daysAgo    int
}

var samples = []sample{
	{core.Expense, 4567, "Starbucks Coffee", "1", 2},
	{core.Expense, 12543, "Shell Gas Station", "2", 1},
	{core.Income, 320000, "Salary Deposit", "7", 5},
}

// Gateway is a deterministic banksync.Gateway and banksync.Linker.
type Gateway struct {
	now func() time.Time

	mu       sync.Mutex
	tokens   int
	failNext int
}

type Option func(*Gateway)

// WithClock sets the clock used to date the simulated transactions.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func New(opts ...Option) *Gateway {
	g := &Gateway{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Name() string { return "demo" }

// FailNext makes the next n Sync calls fail with a retryable error.
func (g *Gateway) FailNext(n int) {
	g.mu.Lock()
	g.failNext = n
	g.mu.Unlock()
}

// Sync reports the simulated transactions for accountID, dated relative to
// the gateway clock. The account's balance is left as stored.
func (g *Gateway) Sync(ctx context.Context, accountID string) (banksync.Result, error) {
	if err := ctx.Err(); err != nil {
		return banksync.Result{}, err
	}
	g.mu.Lock()
	if g.failNext > 0 {
		g.failNext--
		g.mu.Unlock()
		return banksync.Result{}, &banksync.RetryableError{Err: fmt.Errorf("demo: simulated outage for %s", accountID)}
	}
	g.mu.Unlock()

	today := core.DateOf(g.now())
	res := banksync.Result{Transactions: make([]core.Transaction, 0, len(samples))}
	for _, s := range samples {
		res.Transactions = append(res.Transactions, core.Transaction{
			Type:        s.typ,
			Amount:      core.Money{Cents: s.cents},
			Description: s.desc,
			CategoryID:  s.categoryID,
			Date:        today.AddDays(-s.daysAgo),
			Source:      core.SourceBank,
			AccountID:   accountID,
		})
	}
	return res, nil
}

// CreateLinkToken returns a fresh opaque token.
func (g *Gateway) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", core.NewValidationError("userId", core.ErrEmptyID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens++
	return fmt.Sprintf("link-demo-%s-%d", userID, g.tokens), nil
}

// ExchangePublicToken links every mock account.
func (g *Gateway) ExchangePublicToken(ctx context.Context, publicToken string) ([]catalog.AccountUpdate, error) {
	if publicToken == "" {
		return nil, core.NewValidationError("publicToken", core.ErrEmptyID)
	}
	now := g.now()
	out := make([]catalog.AccountUpdate, len(Accounts))
	for i, a := range Accounts {
		a.Status = core.StatusConnected
		a.LastSync = now
		out[i] = a
	}
	return out, nil
}

var (
	_ banksync.Gateway = (*Gateway)(nil)
	_ banksync.Linker  = (*Gateway)(nil)
)
