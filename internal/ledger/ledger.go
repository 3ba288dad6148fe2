// Package ledger holds the ordered list of income and expense transactions.
//
// The ledger is an in-memory collection guarded by a RWMutex. Persistence is
// the caller's concern: the services layer snapshots the ledger with All and
// writes it through a store.Repository after each mutation.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// ImportResult counts the outcome of a batch import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	IDs      []string `json:"ids,omitempty"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	txs     []core.Transaction
	index   map[string]int
	version uint64

	now   func() time.Time
	newID func() string
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator sets the function used for fresh transaction IDs.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// New returns an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		index: make(map[string]int),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add validates tx, assigns an ID when it has none and appends it.
// No duplicate check is performed.
func (l *Ledger) Add(tx core.Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addLocked(tx)
}

func (l *Ledger) addLocked(tx core.Transaction) (string, error) {
	tx = l.prepare(tx)
	if err := tx.Validate(); err != nil {
		return "", err
	}
	if _, exists := l.index[tx.ID]; exists {
		return "", core.NewValidationError("id", fmt.Errorf("%w %q", core.ErrDuplicateID, tx.ID))
	}
	l.index[tx.ID] = len(l.txs)
	l.txs = append(l.txs, tx)
	l.version++
	return tx.ID, nil
}

func (l *Ledger) prepare(tx core.Transaction) core.Transaction {
	if tx.ID == "" {
		tx.ID = l.newID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now()
	}
	if tx.Source == "" {
		tx.Source = core.SourceManual
	}
	return tx
}

// Replace swaps the entry with the given id for tx. The stored id is kept and
// so is the original CreatedAt when tx carries none.
func (l *Ledger) Replace(id string, tx core.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.index[id]
	if !ok {
		return core.NewNotFound("transaction", id)
	}
	old := l.txs[pos]
	tx.ID = id
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = old.CreatedAt
	}
	if tx.Source == "" {
		tx.Source = old.Source
	}
	if err := tx.Validate(); err != nil {
		return err
	}
	l.txs[pos] = tx
	l.version++
	return nil
}

// Remove deletes the entry with the given id. Removing a missing id is not
// an error. It reports whether anything was removed.
func (l *Ledger) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.index[id]
	if !ok {
		return false
	}
	l.txs = append(l.txs[:pos], l.txs[pos+1:]...)
	delete(l.index, id)
	for i := pos; i < len(l.txs); i++ {
		l.index[l.txs[i].ID] = i
	}
	l.version++
	return true
}

// ImportFromBank adds candidate tagged as a bank transaction unless an
// entry with the same description and amount already exists.
//
// Known limitation: the dedup key is (Description, Amount) only. Two real
// transactions that share both collapse into one; ExternalID is stored but
// not consulted.
func (l *Ledger) ImportFromBank(candidate core.Transaction) (id string, imported bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.importLocked(candidate)
}

func (l *Ledger) importLocked(candidate core.Transaction) (string, bool, error) {
	candidate.Source = core.SourceBank
	if existing, dup := l.findDuplicateLocked(candidate); dup {
		return existing, false, nil
	}
	id, err := l.addLocked(candidate)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (l *Ledger) findDuplicateLocked(c core.Transaction) (string, bool) {
	for _, tx := range l.txs {
		if tx.Description == c.Description && tx.Amount.Cents == c.Amount.Cents {
			return tx.ID, true
		}
	}
	return "", false
}

// ImportBatch applies candidates in order with ImportFromBank semantics
// under a single lock. The whole batch is validated first and nothing is
// applied if any candidate is invalid.
func (l *Ledger) ImportBatch(candidates []core.Transaction) (ImportResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, c := range candidates {
		c = l.prepare(c)
		c.Source = core.SourceBank
		if err := c.Validate(); err != nil {
			return ImportResult{}, fmt.Errorf("candidate %d: %w", i, err)
		}
	}

	var res ImportResult
	for _, c := range candidates {
		id, imported, err := l.importLocked(c)
		if err != nil {
			// Only a colliding caller-supplied ID can get here.
			return res, err
		}
		if imported {
			res.Imported++
			res.IDs = append(res.IDs, id)
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

// Get returns the transaction with the given id.
func (l *Ledger) Get(id string) (core.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.index[id]
	if !ok {
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}
	return l.txs[pos], nil
}

// All returns a copy of every transaction in insertion order.
func (l *Ledger) All() []core.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.Transaction, len(l.txs))
	copy(out, l.txs)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.txs)
}

// Version increases on every mutation.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Restore replaces the contents with txs, e.g. after loading from storage or
// rolling back a failed sync. Entries are taken as-is without validation.
func (l *Ledger) Restore(txs []core.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs = make([]core.Transaction, len(txs))
	copy(l.txs, txs)
	l.index = make(map[string]int, len(txs))
	for i, tx := range l.txs {
		l.index[tx.ID] = i
	}
	l.version++
}
