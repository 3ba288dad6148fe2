package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

// setupEnv points the CLI at a fresh JSON data directory and the demo
// gateway. Each run bootstraps anew, so state carries over through disk.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PORT", "8081")
	t.Setenv("DATA_BACKEND", "json")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("BANK_GATEWAY", "demo")
	t.Setenv("AMQP_URL", "")
	t.Setenv("CATEGORY_SEED_FILE", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SYNC_MAX_RETRIES", "0")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "fintrack-cli %s", strings.Join(args, " "))
	return out
}

func TestVersion(t *testing.T) {
	// No environment needed.
	out := mustRun(t, "version")
	assert.Equal(t, "fintrack-cli dev\n", out)
}

func TestTransactionsAndSummary(t *testing.T) {
	setupEnv(t)

	mustRun(t, "transactions", "add", "-t", "income", "-a", "1000", "-d", "Salary", "-c", "7", "--date", "2024-03-01")
	mustRun(t, "transactions", "add", "-t", "expense", "-a", "250.50", "-d", "Groceries", "-c", "1", "--date", "2024-03-05")

	var txs []core.Transaction
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "transactions", "list")), &txs))
	require.Len(t, txs, 2)
	assert.Equal(t, "Groceries", txs[0].Description, "newest first")
	assert.Equal(t, core.SourceManual, txs[0].Source)

	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "transactions", "list", "--type", "income")), &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "Salary", txs[0].Description)

	var summary struct {
		Summary core.PeriodSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "summary", "--period", "all")), &summary))
	assert.Equal(t, int64(100000), summary.Summary.TotalIncome.Cents)
	assert.Equal(t, int64(25050), summary.Summary.TotalExpense.Cents)
	assert.Equal(t, int64(74950), summary.Summary.Balance.Cents)

	table := mustRun(t, "transactions", "list", "-n", "1")
	assert.Contains(t, table, "Groceries")
	assert.Contains(t, table, "Food & Dining")
	assert.NotContains(t, table, "Salary")

	mustRun(t, "transactions", "rm", txs[0].ID)
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "transactions", "list")), &txs))
	assert.Len(t, txs, 1)
}

func TestTransactionsAddRejectsInvalidInput(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "transactions", "add", "-t", "expense", "-a", "-5", "-d", "Refund", "-c", "1")
	assert.Error(t, err)

	_, err = run(t, "transactions", "add", "-t", "transfer", "-a", "5", "-d", "Move", "-c", "1")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = run(t, "summary", "--period", "week")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestCategoriesAndBudgets(t *testing.T) {
	setupEnv(t)

	var cats []core.Category
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "categories")), &cats))
	assert.Len(t, cats, 9)

	mustRun(t, "budgets", "add", "-c", "1", "-a", "100", "--period", "monthly")
	mustRun(t, "transactions", "add", "-t", "expense", "-a", "40", "-d", "Dinner", "-c", "1")

	var statuses []core.BudgetStatus
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "budgets")), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, int64(4000), statuses[0].Spent.Cents)
	assert.InDelta(t, 40.0, statuses[0].Percentage, 0.001)
	assert.False(t, statuses[0].OverBudget)
}

func TestLinkAndSync(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "accounts", "link", "public-sandbox-token")
	assert.Contains(t, out, "Linked 3 account(s)")

	var report services.SyncReport
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "--json", "sync")), &report))
	assert.Len(t, report.Accounts, 3)
	assert.Equal(t, 0, report.Failed)
	// Every demo account reports the same samples; only the first copy lands.
	assert.Equal(t, 3, report.Imported)
	assert.Equal(t, 6, report.Skipped)

	out = mustRun(t, "sync", "acc_1")
	assert.Contains(t, out, "acc_1: imported 0, skipped 3")

	_, err := run(t, "sync", "acc_missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestExportAndImportCSV(t *testing.T) {
	dir := setupEnv(t)

	mustRun(t, "transactions", "add", "-t", "expense", "-a", "12.5", "-d", "Coffee beans", "-c", "1", "--date", "2024-02-10")

	path := filepath.Join(dir, "exports", "all.csv")
	mustRun(t, "export", "csv", "-o", path)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Coffee beans")
	assert.Contains(t, string(raw), "12.50")

	out := mustRun(t, "import-csv", path)
	assert.Contains(t, out, "Imported 0, skipped 1 duplicate(s)")

	out = mustRun(t, "import-csv", "--dry-run", path)
	assert.Contains(t, out, "Parsed 1 transaction(s)")
}

func TestImportOFX(t *testing.T) {
	dir := setupEnv(t)

	path := filepath.Join(dir, "statement.ofx")
	require.NoError(t, os.WriteFile(path, []byte(sampleOFX), 0o644))

	out := mustRun(t, "import-ofx", path)
	assert.Contains(t, out, "Imported 2, skipped 0 duplicate(s)")

	out = mustRun(t, "import-ofx", path)
	assert.Contains(t, out, "Imported 0, skipped 2 duplicate(s)")

	_, err := run(t, "import-ofx", filepath.Join(dir, "missing.ofx"))
	assert.Error(t, err)
}

func TestExportSheetsRequiresSpreadsheet(t *testing.T) {
	setupEnv(t)
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := run(t, "export", "sheets")
	assert.ErrorContains(t, err, "GOOGLE_SPREADSHEET_ID")
}

const sampleOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>9876543210
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240301120000[0:GMT]
<DTEND>20240315120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240305120000[0:GMT]
<TRNAMT>-42.10
<FITID>T1
<NAME>CORNER MARKET
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240310120000[0:GMT]
<TRNAMT>1500.00
<FITID>T2
<NAME>ACME PAYROLL
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>2457.90
<DTASOF>20240315120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`
