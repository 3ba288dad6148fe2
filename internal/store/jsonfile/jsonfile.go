// Package jsonfile persists each collection as a JSON array in its own file
// under a data directory: transactions.json, categories.json, budgets.json
// and bankAccounts.json. revision.json holds the store revision, and an
// advisory lock on .lock lets several processes share the directory.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"fintrack/internal/store"
)

const revisionFile = "revision"

type Store struct {
	dir  string
	mu   sync.Mutex
	lock *os.File
}

// New ensures dir exists and returns a store rooted there.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("jsonfile: empty data directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	lock, err := os.OpenFile(filepath.Join(dir, ".lock"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return &Store{dir: dir, lock: lock}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// locked runs fn holding the in-process mutex and the directory lock.
func (s *Store) locked(exclusive bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := lockFile(s.lock, exclusive); err != nil {
		return fmt.Errorf("lock data directory: %w", err)
	}
	defer unlockFile(s.lock)
	return fn()
}

func (s *Store) Load(ctx context.Context) (store.State, error) {
	var st store.State
	err := s.locked(false, func() (err error) {
		st, err = s.load(ctx)
		return err
	})
	return st, err
}

func (s *Store) load(ctx context.Context) (store.State, error) {
	st := store.State{Present: map[store.Collection]bool{}}
	targets := map[store.Collection]any{
		store.Transactions: &st.Transactions,
		store.Categories:   &st.Categories,
		store.Budgets:      &st.Budgets,
		store.BankAccounts: &st.BankAccounts,
	}
	for _, c := range store.AllCollections {
		if err := ctx.Err(); err != nil {
			return store.State{}, err
		}
		ok, err := s.read(string(c), targets[c])
		if err != nil {
			return store.State{}, err
		}
		st.Present[c] = ok
	}
	rev, err := s.revision()
	if err != nil {
		return store.State{}, err
	}
	st.Revision = rev
	return st, nil
}

func (s *Store) Revision(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	// The file is replaced by rename, so an unlocked read sees either the
	// old or the new value.
	return s.revision()
}

func (s *Store) revision() (int64, error) {
	var rev int64
	if _, err := s.read(revisionFile, &rev); err != nil {
		return 0, err
	}
	return rev, nil
}

func (s *Store) read(name string, dst any) (bool, error) {
	raw, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) Save(ctx context.Context, st store.State, collections ...store.Collection) error {
	cols, err := store.Resolve(collections)
	if err != nil {
		return err
	}
	err = s.locked(true, func() error {
		return s.save(ctx, st, cols)
	})
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Saved collections", "component", "storage", "backend", "json",
		"collections", cols, "revision", st.Revision+1)
	return nil
}

// save writes the collections, then the advanced revision.
func (s *Store) save(ctx context.Context, st store.State, cols []store.Collection) error {
	current, err := s.revision()
	if err != nil {
		return err
	}
	if err := store.CheckRevision(current, st); err != nil {
		return err
	}
	for _, c := range cols {
		if err := ctx.Err(); err != nil {
			return err
		}
		var v any
		switch c {
		case store.Transactions:
			v = nonNil(st.Transactions)
		case store.Categories:
			v = nonNil(st.Categories)
		case store.Budgets:
			v = nonNil(st.Budgets)
		case store.BankAccounts:
			v = nonNil(st.BankAccounts)
		}
		if err := s.write(string(c), v); err != nil {
			return err
		}
	}
	return s.write(revisionFile, st.Revision+1)
}

// write replaces the named file atomically through a temp file.
func (s *Store) write(c string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", c, err)
	}
	tmp, err := os.CreateTemp(s.dir, c+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", c, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", c, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", c, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c, err)
	}
	if err := os.Rename(tmp.Name(), s.path(c)); err != nil {
		return fmt.Errorf("replace %s: %w", c, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.lock.Close()
}

// nonNil keeps empty collections encoded as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
