package ofx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"fintrack/internal/banksync"
	"fintrack/internal/catalog"
	applog "fintrack/internal/log"
)

// Extensions are tried in order when looking up an account's statement.
var Extensions = []string{".ofx", ".qfx"}

// Gateway syncs accounts from statement files named <accountID>.ofx or
// <accountID>.qfx in a directory, typically dropped there by a bank export.
type Gateway struct {
	dir    string
	logger *applog.Logger
}

func NewGateway(dir string, logger *applog.Logger) *Gateway {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Gateway{dir: dir, logger: logger.WithComponent(applog.ComponentOFX)}
}

func (g *Gateway) Name() string { return "ofx" }

func (g *Gateway) statementPath(accountID string) (string, error) {
	if accountID == "" || filepath.Base(accountID) != accountID {
		return "", fmt.Errorf("ofx: invalid account id %q: %w", accountID, banksync.ErrUnknownAccount)
	}
	for _, ext := range Extensions {
		p := filepath.Join(g.dir, accountID+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("ofx: stat %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("ofx: no statement for account %s in %s: %w", accountID, g.dir, banksync.ErrUnknownAccount)
}

// Sync reads the account's statement file. The statement whose account
// number equals accountID is used, or the only statement when the file
// holds exactly one.
func (g *Gateway) Sync(ctx context.Context, accountID string) (banksync.Result, error) {
	if err := ctx.Err(); err != nil {
		return banksync.Result{}, err
	}
	path, err := g.statementPath(accountID)
	if err != nil {
		return banksync.Result{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return banksync.Result{}, fmt.Errorf("ofx: open statement: %w", err)
	}
	defer f.Close()

	stmts, err := Parse(f)
	if err != nil {
		return banksync.Result{}, fmt.Errorf("ofx: %s: %w", filepath.Base(path), err)
	}
	stmt, ok := pick(stmts, accountID)
	if !ok {
		return banksync.Result{}, fmt.Errorf("ofx: %s has no statement for %s: %w", filepath.Base(path), accountID, banksync.ErrUnknownAccount)
	}

	txs := stmt.Transactions
	for i := range txs {
		txs[i].AccountID = accountID
	}
	if stmt.Skipped > 0 {
		g.logger.WarnContext(ctx, "Skipped unusable statement rows",
			applog.FieldAccountID, accountID,
			applog.FieldSkipped, stmt.Skipped)
	}
	g.logger.DebugContext(ctx, "Read OFX statement",
		applog.FieldAccountID, accountID,
		"file", filepath.Base(path),
		"count", len(txs))

	return banksync.Result{
		Accounts: []catalog.AccountUpdate{{
			AccountID: accountID,
			Type:      stmt.Kind,
			Balance:   stmt.Balance,
		}},
		Transactions: txs,
	}, nil
}

func pick(stmts []Statement, accountID string) (Statement, bool) {
	for _, s := range stmts {
		if s.AccountID == accountID {
			return s, true
		}
	}
	if len(stmts) == 1 {
		return stmts[0], true
	}
	return Statement{}, false
}

var _ banksync.Gateway = (*Gateway)(nil)
