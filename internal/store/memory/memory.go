// Package memory is an in-process store.Repository for tests and ephemeral
// runs. State is deep-copied on the way in and out.
package memory

import (
	"context"
	"slices"
	"sync"

	"fintrack/internal/store"
)

type Store struct {
	mu    sync.RWMutex
	state store.State
	saves int
}

func New() *Store {
	return &Store{state: store.State{Present: map[store.Collection]bool{}}}
}

// NewWithState returns a store preloaded with s; every non-nil slice in s
// counts as present.
func NewWithState(s store.State) *Store {
	m := New()
	if s.Transactions != nil {
		m.state.Present[store.Transactions] = true
	}
	if s.Categories != nil {
		m.state.Present[store.Categories] = true
	}
	if s.Budgets != nil {
		m.state.Present[store.Budgets] = true
	}
	if s.BankAccounts != nil {
		m.state.Present[store.BankAccounts] = true
	}
	m.state.Transactions = slices.Clone(s.Transactions)
	m.state.Categories = slices.Clone(s.Categories)
	m.state.Budgets = slices.Clone(s.Budgets)
	m.state.BankAccounts = slices.Clone(s.BankAccounts)
	return m
}

func (m *Store) Load(ctx context.Context) (store.State, error) {
	if err := ctx.Err(); err != nil {
		return store.State{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyState(m.state), nil
}

func (m *Store) Save(ctx context.Context, s store.State, collections ...store.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cols, err := store.Resolve(collections)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := store.CheckRevision(m.state.Revision, s); err != nil {
		return err
	}
	for _, c := range cols {
		switch c {
		case store.Transactions:
			m.state.Transactions = slices.Clone(s.Transactions)
		case store.Categories:
			m.state.Categories = slices.Clone(s.Categories)
		case store.Budgets:
			m.state.Budgets = slices.Clone(s.Budgets)
		case store.BankAccounts:
			m.state.BankAccounts = slices.Clone(s.BankAccounts)
		}
		m.state.Present[c] = true
	}
	m.state.Revision++
	m.saves++
	return nil
}

func (m *Store) Revision(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Revision, nil
}

// Saves returns how many Save calls succeeded.
func (m *Store) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *Store) Close() error { return nil }

func copyState(s store.State) store.State {
	out := store.State{
		Transactions: slices.Clone(s.Transactions),
		Categories:   slices.Clone(s.Categories),
		Budgets:      slices.Clone(s.Budgets),
		BankAccounts: slices.Clone(s.BankAccounts),
		Present:      make(map[store.Collection]bool, len(s.Present)),
		Revision:     s.Revision,
	}
	for k, v := range s.Present {
		out.Present[k] = v
	}
	return out
}
