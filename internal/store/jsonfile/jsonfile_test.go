package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

func TestLoadEmptyDirectory(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	st, err := s.Load(context.Background())
	require.NoError(t, err)
	for _, c := range store.AllCollections {
		assert.False(t, st.Has(c), c)
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	created := time.Date(2024, 1, 20, 9, 30, 0, 0, time.UTC)
	in := store.State{
		Transactions: []core.Transaction{
			{ID: "b", Type: core.Expense, Amount: core.Money{Cents: 4567}, Description: "Starbucks", CategoryID: "1", Date: core.NewDate(2024, 1, 18), CreatedAt: created, Source: core.SourceBank, AccountID: "chk"},
			{ID: "a", Type: core.Income, Amount: core.Money{Cents: 320000}, Description: "Salary", CategoryID: "7", Date: core.NewDate(2024, 1, 15), CreatedAt: created, Source: core.SourceManual},
		},
		Categories: core.DefaultCategories(),
		Budgets:    []core.Budget{},
	}
	require.NoError(t, s.Save(ctx, in, store.Transactions, store.Categories, store.Budgets))

	_, err = os.Stat(filepath.Join(dir, "transactions.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "bankAccounts.json"))
	assert.True(t, os.IsNotExist(err))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, out.Has(store.Transactions))
	assert.True(t, out.Has(store.Budgets))
	assert.False(t, out.Has(store.BankAccounts))
	assert.Empty(t, out.Budgets)

	require.Len(t, out.Transactions, 2)
	assert.Equal(t, "b", out.Transactions[0].ID, "order must be preserved")
	assert.Equal(t, in.Transactions[0].Amount, out.Transactions[0].Amount)
	assert.True(t, in.Transactions[0].Date.Equal(out.Transactions[0].Date))
	assert.True(t, created.Equal(out.Transactions[0].CreatedAt))
	assert.Equal(t, core.SourceBank, out.Transactions[0].Source)
	assert.Equal(t, in.Categories, out.Categories)
}

func TestSaveRejectsUnknownCollection(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Save(context.Background(), store.State{}, "widgets"))
}

func TestCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "budgets.json"), []byte("{not json"), 0o644))
	s, err := New(dir)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	assert.Error(t, err)
}

func TestSharedDirectoryRejectsStaleSave(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a, err := New(dir)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(dir)
	require.NoError(t, err)
	defer b.Close()

	stA, err := a.Load(ctx)
	require.NoError(t, err)
	stB, err := b.Load(ctx)
	require.NoError(t, err)

	stA.Transactions = []core.Transaction{{ID: "bank", Type: core.Expense, Amount: core.Money{Cents: 4567}, Description: "Starbucks", CategoryID: "1", Date: core.NewDate(2024, 1, 18)}}
	require.NoError(t, a.Save(ctx, stA, store.Transactions))

	rev, err := b.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	stB.Transactions = []core.Transaction{{ID: "manual", Type: core.Income, Amount: core.Money{Cents: 100}, Description: "Salary", CategoryID: "7", Date: core.NewDate(2024, 1, 19)}}
	err = b.Save(ctx, stB, store.Transactions)
	require.ErrorIs(t, err, store.ErrStale)

	out, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Revision)
	require.Len(t, out.Transactions, 1)
	assert.Equal(t, "bank", out.Transactions[0].ID, "stale save must not overwrite")
}
