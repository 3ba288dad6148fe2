package core

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"

	SourceManual Source = "manual"
	SourceBank   Source = "bank"

	Weekly  BudgetPeriod = "weekly"
	Monthly BudgetPeriod = "monthly"
	Yearly  BudgetPeriod = "yearly"

	StatusConnected AccountStatus = "connected"
	StatusSyncing   AccountStatus = "syncing"
	StatusError     AccountStatus = "error"
)

// maxDescriptionLen bounds free-text descriptions and names.
const maxDescriptionLen = 200

type (
	// TransactionType is the direction of money; amounts are always positive.
	TransactionType string

	// Source is the provenance tag of a transaction.
	Source string

	BudgetPeriod string

	AccountStatus string

	Category struct {
		ID    string          `json:"id" yaml:"id"`
		Name  string          `json:"name" yaml:"name"`
		Type  TransactionType `json:"type" yaml:"type"`
		Color string          `json:"color" yaml:"color"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description"`
		CategoryID  string          `json:"categoryId"` // weak reference, may dangle
		Date        Date            `json:"date"`
		CreatedAt   time.Time       `json:"createdAt"`
		Source      Source          `json:"source,omitempty"`
		AccountID   string          `json:"accountId,omitempty"`
		// ExternalID is the provider's transaction id. Informational only.
		ExternalID string `json:"externalId,omitempty"`
	}

	Budget struct {
		ID         string       `json:"id"`
		CategoryID string       `json:"categoryId"`
		Amount     Money        `json:"amount"`
		Period     BudgetPeriod `json:"period"`
	}

	BankAccount struct {
		ID          string        `json:"id"`
		Name        string        `json:"name"`
		Institution string        `json:"institution"`
		Type        string        `json:"type"`
		Balance     Money         `json:"balance"`
		Status      AccountStatus `json:"status"`
		LastSync    time.Time     `json:"lastSync"`
	}
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (p BudgetPeriod) Valid() bool {
	switch p {
	case Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusConnected, StatusSyncing, StatusError:
		return true
	default:
		return false
	}
}

// IsBank reports whether the transaction was imported from a bank.
func (t Transaction) IsBank() bool {
	return t.Source == SourceBank
}

// ClipDescription trims s and cuts it to the maximum description length
// without splitting a UTF-8 sequence. Gateways use it on provider text.
func ClipDescription(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxDescriptionLen {
		return s
	}
	cut := maxDescriptionLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return invalid("type", ErrInvalidType)
	}
	if err := t.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	desc := strings.TrimSpace(t.Description)
	if desc == "" {
		return invalid("description", ErrEmptyDescription)
	}
	if len(desc) > maxDescriptionLen {
		return invalid("description", ErrTooLong)
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return invalid("categoryId", ErrEmptyCategory)
	}
	if err := t.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	switch t.Source {
	case "", SourceManual, SourceBank:
	default:
		return invalid("source", ErrInvalidSource)
	}
	return nil
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return invalid("name", ErrEmptyName)
	}
	if len(name) > maxDescriptionLen {
		return invalid("name", ErrTooLong)
	}
	if !c.Type.Valid() {
		return invalid("type", ErrInvalidType)
	}
	// Color is optional; the UI picks a default when it is empty.
	if c.Color != "" && !colorPattern.MatchString(c.Color) {
		return invalid("color", ErrInvalidColor)
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.CategoryID) == "" {
		return invalid("categoryId", ErrEmptyCategory)
	}
	if err := b.Amount.Validate(); err != nil {
		return invalid("amount", err)
	}
	if !b.Period.Valid() {
		return invalid("period", ErrInvalidPeriod)
	}
	return nil
}

func (a BankAccount) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return invalid("id", ErrEmptyID)
	}
	if a.Status != "" && !a.Status.Valid() {
		return invalid("status", ErrInvalidStatus)
	}
	return nil
}
