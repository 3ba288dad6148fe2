// Package storage is the SQLite backend of store.Repository. Each collection
// has its own table with a position column that preserves list order, the
// collections table records which collections have ever been saved and
// store_revision holds the single store revision.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

type SQLiteRepository struct {
	db     *sql.DB
	dbPath string
}

var tableOf = map[store.Collection]string{
	store.Transactions: "transactions",
	store.Categories:   "categories",
	store.Budgets:      "budgets",
	store.BankAccounts: "bank_accounts",
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Other processes may hold the write lock; wait for them.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the pool's connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, dbPath: dbPath}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the connection for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Path returns the database file path.
func (r *SQLiteRepository) Path() string {
	return r.dbPath
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) Revision(ctx context.Context) (int64, error) {
	return readRevision(ctx, r.db)
}

func readRevision(ctx context.Context, q querier) (int64, error) {
	var rev int64
	if err := q.QueryRowContext(ctx, `SELECT revision FROM store_revision WHERE id = 1`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return rev, nil
}

// Load reads every table inside one transaction so the state and its
// revision are consistent.
func (r *SQLiteRepository) Load(ctx context.Context) (store.State, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return store.State{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	return load(ctx, tx)
}

func load(ctx context.Context, q querier) (store.State, error) {
	st := store.State{Present: map[store.Collection]bool{}}

	var err error
	if st.Revision, err = readRevision(ctx, q); err != nil {
		return st, err
	}

	rows, err := q.QueryContext(ctx, `SELECT name FROM collections`)
	if err != nil {
		return st, fmt.Errorf("load collections: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return st, fmt.Errorf("scan collection: %w", err)
		}
		st.Present[store.Collection(name)] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("load collections: %w", err)
	}

	if st.Transactions, err = loadTransactions(ctx, q); err != nil {
		return st, err
	}
	if st.Categories, err = loadCategories(ctx, q); err != nil {
		return st, err
	}
	if st.Budgets, err = loadBudgets(ctx, q); err != nil {
		return st, err
	}
	if st.BankAccounts, err = loadAccounts(ctx, q); err != nil {
		return st, err
	}
	return st, nil
}

func loadTransactions(ctx context.Context, q querier) ([]core.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, type, amount_cents, description, category_id, date, created_at, source, account_id, external_id
		FROM transactions ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t               core.Transaction
			typ, src        string
			date, createdAt string
		)
		if err := rows.Scan(&t.ID, &typ, &t.Amount.Cents, &t.Description, &t.CategoryID, &date, &createdAt, &src, &t.AccountID, &t.ExternalID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.TransactionType(typ)
		t.Source = core.Source(src)
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func loadCategories(ctx context.Context, q querier) ([]core.Category, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, type, color FROM categories ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var typ string
		if err := rows.Scan(&c.ID, &c.Name, &typ, &c.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.TransactionType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func loadBudgets(ctx context.Context, q querier) ([]core.Budget, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, category_id, amount_cents, period FROM budgets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		var period string
		if err := rows.Scan(&b.ID, &b.CategoryID, &b.Amount.Cents, &period); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Period = core.BudgetPeriod(period)
		out = append(out, b)
	}
	return out, rows.Err()
}

func loadAccounts(ctx context.Context, q querier) ([]core.BankAccount, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, institution, type, balance_cents, status, last_sync
		FROM bank_accounts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load bank accounts: %w", err)
	}
	defer rows.Close()

	var out []core.BankAccount
	for rows.Next() {
		var a core.BankAccount
		var status, lastSync string
		if err := rows.Scan(&a.ID, &a.Name, &a.Institution, &a.Type, &a.Balance.Cents, &status, &lastSync); err != nil {
			return nil, fmt.Errorf("scan bank account: %w", err)
		}
		a.Status = core.AccountStatus(status)
		if a.LastSync, err = parseTime(lastSync); err != nil {
			return nil, fmt.Errorf("bank account %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Save replaces the named collections inside one SQL transaction. The
// revision bump comes first so a concurrent writer blocks on the lock.
func (r *SQLiteRepository) Save(ctx context.Context, st store.State, collections ...store.Collection) error {
	cols, err := store.Resolve(collections)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := bumpRevision(ctx, tx, st); err != nil {
		return err
	}

	savedAt := time.Now().UTC().Format(time.RFC3339Nano)
	for _, c := range cols {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+tableOf[c]); err != nil {
			return fmt.Errorf("clear %s: %w", c, err)
		}
		switch c {
		case store.Transactions:
			err = saveTransactions(ctx, tx, st.Transactions)
		case store.Categories:
			err = saveCategories(ctx, tx, st.Categories)
		case store.Budgets:
			err = saveBudgets(ctx, tx, st.Budgets)
		case store.BankAccounts:
			err = saveAccounts(ctx, tx, st.BankAccounts)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collections (name, saved_at) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET saved_at = excluded.saved_at`, string(c), savedAt); err != nil {
			return fmt.Errorf("mark %s present: %w", c, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.DebugContext(ctx, "Saved collections", "component", "storage", "backend", "sqlite",
		"collections", cols, "revision", st.Revision+1)
	return nil
}

func bumpRevision(ctx context.Context, tx *sql.Tx, st store.State) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE store_revision SET revision = revision + 1 WHERE id = 1 AND revision = ?`, st.Revision)
	if err != nil {
		return fmt.Errorf("advance revision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance revision: %w", err)
	}
	if n == 1 {
		return nil
	}
	current, err := readRevision(ctx, tx)
	if err != nil {
		return err
	}
	if err := store.CheckRevision(current, st); err != nil {
		return err
	}
	return errors.New("advance revision: no revision row")
}

func saveTransactions(ctx context.Context, tx *sql.Tx, txs []core.Transaction) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, position, type, amount_cents, description, category_id, date, created_at, source, account_id, external_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transactions: %w", err)
	}
	defer stmt.Close()
	for i, t := range txs {
		if _, err := stmt.ExecContext(ctx, t.ID, i, string(t.Type), t.Amount.Cents, t.Description, t.CategoryID,
			t.Date.String(), formatTime(t.CreatedAt), string(t.Source), t.AccountID, t.ExternalID); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	return nil
}

func saveCategories(ctx context.Context, tx *sql.Tx, cats []core.Category) error {
	for i, c := range cats {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, position, name, type, color) VALUES (?, ?, ?, ?, ?)`,
			c.ID, i, c.Name, string(c.Type), c.Color); err != nil {
			return fmt.Errorf("insert category %s: %w", c.ID, err)
		}
	}
	return nil
}

func saveBudgets(ctx context.Context, tx *sql.Tx, budgets []core.Budget) error {
	for i, b := range budgets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budgets (id, position, category_id, amount_cents, period) VALUES (?, ?, ?, ?, ?)`,
			b.ID, i, b.CategoryID, b.Amount.Cents, string(b.Period)); err != nil {
			return fmt.Errorf("insert budget %s: %w", b.ID, err)
		}
	}
	return nil
}

func saveAccounts(ctx context.Context, tx *sql.Tx, accounts []core.BankAccount) error {
	for i, a := range accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bank_accounts (id, position, name, institution, type, balance_cents, status, last_sync)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, i, a.Name, a.Institution, a.Type, a.Balance.Cents, string(a.Status), formatTime(a.LastSync)); err != nil {
			return fmt.Errorf("insert bank account %s: %w", a.ID, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
