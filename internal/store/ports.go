// Package store defines the persistence port for the four tracker
// collections and small helpers shared by its backends.
package store

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

// Collection names a persisted collection. The values double as the storage
// keys used by the file and sqlite backends.
type Collection string

const (
	Transactions Collection = "transactions"
	Categories   Collection = "categories"
	Budgets      Collection = "budgets"
	BankAccounts Collection = "bankAccounts"
)

// AllCollections lists every collection in load order.
var AllCollections = []Collection{Transactions, Categories, Budgets, BankAccounts}

func (c Collection) Valid() bool {
	switch c {
	case Transactions, Categories, Budgets, BankAccounts:
		return true
	default:
		return false
	}
}

// State is the full persisted state. Slices keep their stored order.
type State struct {
	Transactions []core.Transaction
	Categories   []core.Category
	Budgets      []core.Budget
	BankAccounts []core.BankAccount

	// Present records which collections existed in the backing store when
	// the state was loaded. An empty but present collection stays empty.
	Present map[Collection]bool

	// Revision is the store revision the state was read at. Every
	// successful Save advances the store revision by one.
	Revision int64
}

// ErrStale is returned by Save when another writer has saved since the
// state's Revision was read.
var ErrStale = errors.New("state is stale")

// CheckRevision returns ErrStale unless the state was read at current.
func CheckRevision(current int64, s State) error {
	if s.Revision != current {
		return fmt.Errorf("%w: store at revision %d, state read at %d", ErrStale, current, s.Revision)
	}
	return nil
}

// Has reports whether collection c was present at load time.
func (s State) Has(c Collection) bool {
	return s.Present[c]
}

// Repository loads and saves the tracker state as a unit.
type Repository interface {
	// Load reads every collection. Missing collections come back empty and
	// absent from State.Present.
	Load(ctx context.Context) (State, error)

	// Save writes the named collections of state, or all of them when none
	// are named. It fails with ErrStale, writing nothing, unless
	// state.Revision is the current store revision; on success the store
	// revision becomes state.Revision+1.
	Save(ctx context.Context, state State, collections ...Collection) error

	// Revision reports the current store revision without loading data.
	Revision(ctx context.Context) (int64, error)

	Close() error
}

// Resolve expands an empty collection list to all collections and rejects
// unknown names.
func Resolve(collections []Collection) ([]Collection, error) {
	if len(collections) == 0 {
		return AllCollections, nil
	}
	for _, c := range collections {
		if !c.Valid() {
			return nil, fmt.Errorf("unknown collection %q", c)
		}
	}
	return collections, nil
}
