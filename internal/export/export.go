// Package export writes ledger transactions to CSV files and Google Sheets,
// and reads them back from CSV.
package export

import (
	"fmt"
	"strings"

	"fintrack/internal/core"
)

// Row is the flat, column-ordered form of a transaction shared by the CSV
// and Sheets exporters.
type Row struct {
	ID          string `csv:"id"`
	Date        string `csv:"date"`
	Type        string `csv:"type"`
	Amount      string `csv:"amount"`
	Description string `csv:"description"`
	CategoryID  string `csv:"category_id"`
	Category    string `csv:"category"`
	Source      string `csv:"source"`
	AccountID   string `csv:"account_id"`
}

// CategoryNamer resolves category ids to display names.
type CategoryNamer interface {
	CategoryName(id string) string
}

// Rows flattens txs in order. names may be nil, leaving Category empty.
func Rows(txs []core.Transaction, names CategoryNamer) []Row {
	rows := make([]Row, 0, len(txs))
	for _, tx := range txs {
		r := Row{
			ID:          tx.ID,
			Date:        tx.Date.String(),
			Type:        string(tx.Type),
			Amount:      tx.Amount.String(),
			Description: tx.Description,
			CategoryID:  tx.CategoryID,
			Source:      string(tx.Source),
			AccountID:   tx.AccountID,
		}
		if names != nil {
			r.Category = names.CategoryName(tx.CategoryID)
		}
		rows = append(rows, r)
	}
	return rows
}

// Transaction converts a row back into a transaction candidate. The id and
// category name are ignored; the ledger assigns ids on import.
func (r Row) Transaction() (core.Transaction, error) {
	date, err := core.ParseDate(strings.TrimSpace(r.Date))
	if err != nil {
		return core.Transaction{}, core.NewValidationError("date", err)
	}
	amount, err := core.ParseMoney(strings.TrimSpace(r.Amount))
	if err != nil {
		return core.Transaction{}, core.NewValidationError("amount", err)
	}
	tx := core.Transaction{
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(r.Type))),
		Amount:      amount,
		Description: strings.TrimSpace(r.Description),
		CategoryID:  strings.TrimSpace(r.CategoryID),
		Date:        date,
		Source:      core.Source(strings.TrimSpace(r.Source)),
		AccountID:   strings.TrimSpace(r.AccountID),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// Transactions converts rows, reporting the first bad one by its 1-based
// line number (the header is line 1).
func Transactions(rows []Row) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for i, r := range rows {
		tx, err := r.Transaction()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		out = append(out, tx)
	}
	return out, nil
}
