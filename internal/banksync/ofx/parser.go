// Package ofx reads OFX/QFX bank and credit card statements. It backs the
// statement-directory bank gateway and the CLI import command.
package ofx

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Statement is one account section of an OFX document.
type Statement struct {
	AccountID    string
	Kind         string // checking, savings, credit, ...
	Balance      core.Money
	Transactions []core.Transaction
	// Skipped counts statement rows that could not become transactions.
	Skipped int
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)`)
	// SGML files sometimes lose the closing bracket on bare aggregate tags.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// Parse reads every bank and credit card statement in r.
func Parse(r io.Reader) ([]Statement, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read OFX: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("parse OFX: %w", err)
	}

	var out []Statement
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		s := Statement{
			AccountID: string(stmt.BankAcctFrom.AcctID),
			Kind:      strings.ToLower(stmt.BankAcctFrom.AcctType.String()),
			Balance:   amountToMoney(stmt.BalAmt),
		}
		if stmt.BankTranList != nil {
			s.Transactions, s.Skipped = convertAll(stmt.BankTranList.Transactions, s.AccountID)
		}
		out = append(out, s)
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		s := Statement{
			AccountID: string(stmt.CCAcctFrom.AcctID),
			Kind:      "credit",
			Balance:   amountToMoney(stmt.BalAmt),
		}
		if stmt.BankTranList != nil {
			s.Transactions, s.Skipped = convertAll(stmt.BankTranList.Transactions, s.AccountID)
		}
		out = append(out, s)
	}
	return out, nil
}

func convertAll(in []ofxgo.Transaction, accountID string) ([]core.Transaction, int) {
	out := make([]core.Transaction, 0, len(in))
	skipped := 0
	for _, t := range in {
		tx, ok := convert(t, accountID)
		if !ok {
			skipped++
			continue
		}
		out = append(out, tx)
	}
	return out, skipped
}

// convert maps one statement row. OFX signs debits negative.
func convert(t ofxgo.Transaction, accountID string) (core.Transaction, bool) {
	amount := amountToMoney(t.TrnAmt)
	typ := core.Income
	if amount.Cents < 0 {
		typ = core.Expense
	}
	amount = amount.Abs()
	if amount.IsZero() || t.DtPosted.IsZero() {
		return core.Transaction{}, false
	}
	desc := core.ClipDescription(description(t))
	if desc == "" {
		return core.Transaction{}, false
	}
	return core.Transaction{
		Type:        typ,
		Amount:      amount,
		Description: desc,
		CategoryID:  categoryFor(typ, t.TrnType.String()),
		Date:        core.DateOf(t.DtPosted.Time),
		Source:      core.SourceBank,
		AccountID:   accountID,
		ExternalID:  string(t.FiTID),
	}, true
}

func description(t ofxgo.Transaction) string {
	if t.Payee != nil && t.Payee.Name != "" {
		return string(t.Payee.Name)
	}
	name := strings.TrimSpace(string(t.Name))
	if t.Memo != "" && isGeneric(name) {
		return string(t.Memo)
	}
	return name
}

func isGeneric(name string) bool {
	switch strings.ToUpper(name) {
	case "", "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}

// categoryFor picks a default category from the OFX transaction type.
func categoryFor(typ core.TransactionType, trnType string) string {
	if typ == core.Income {
		switch trnType {
		case "INT", "DIV":
			return "9"
		}
		return "7"
	}
	switch trnType {
	case "FEE", "SRVCHG":
		return "5"
	}
	return "1"
}

func amountToMoney(a ofxgo.Amount) core.Money {
	d, err := decimal.NewFromString(a.FloatString(4))
	if err != nil {
		return core.Money{}
	}
	m, err := core.MoneyFromDecimal(d)
	if err != nil {
		return core.Money{}
	}
	return m
}
