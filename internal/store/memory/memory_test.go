package memory

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

func TestSaveIsolatesCallerSlices(t *testing.T) {
	ctx := context.Background()
	m := New()

	cats := core.DefaultCategories()
	if err := m.Save(ctx, store.State{Categories: cats}, store.Categories); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cats[0].Name = "mutated"

	st, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.Categories[0].Name == "mutated" {
		t.Fatalf("store shares memory with caller")
	}
	if !st.Has(store.Categories) || st.Has(store.Transactions) {
		t.Fatalf("unexpected presence: %+v", st.Present)
	}
	if m.Saves() != 1 {
		t.Fatalf("Saves = %d", m.Saves())
	}
}

func TestNewWithState(t *testing.T) {
	m := NewWithState(store.State{Budgets: []core.Budget{}})
	st, _ := m.Load(context.Background())
	if !st.Has(store.Budgets) || st.Has(store.Categories) {
		t.Fatalf("unexpected presence: %+v", st.Present)
	}
}

func TestSaveRejectsStaleRevision(t *testing.T) {
	ctx := context.Background()
	m := New()

	st, _ := m.Load(ctx)
	if err := m.Save(ctx, st, store.Budgets); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// st still carries revision 0.
	if err := m.Save(ctx, st, store.Budgets); !errors.Is(err, store.ErrStale) {
		t.Fatalf("stale Save = %v, want ErrStale", err)
	}
	rev, _ := m.Revision(ctx)
	if rev != 1 {
		t.Fatalf("Revision = %d, want 1", rev)
	}
	fresh, _ := m.Load(ctx)
	if fresh.Revision != 1 {
		t.Fatalf("loaded Revision = %d, want 1", fresh.Revision)
	}
}
