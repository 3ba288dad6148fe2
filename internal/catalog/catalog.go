package catalog

import (
	"time"

	"fintrack/internal/core"
)

// Categories is the category store. It resolves names for the ledger's
// search and for display.
type Categories struct {
	*Collection[core.Category]
}

func NewCategories() *Categories {
	return &Categories{newCollection("category",
		func(c core.Category) string { return c.ID },
		func(c *core.Category, id string) { c.ID = id },
		core.Category.Validate,
	)}
}

// Name returns the display name of a category, or "Unknown" when the id
// does not resolve.
func (c *Categories) Name(id string) string {
	if cat, err := c.Get(id); err == nil {
		return cat.Name
	}
	return core.UnknownCategoryName
}

// Color returns the category color, or the neutral color for dangling ids.
func (c *Categories) Color(id string) string {
	if cat, err := c.Get(id); err == nil && cat.Color != "" {
		return cat.Color
	}
	return core.UnknownCategoryColor
}

type Budgets struct {
	*Collection[core.Budget]
}

func NewBudgets() *Budgets {
	return &Budgets{newCollection("budget",
		func(b core.Budget) string { return b.ID },
		func(b *core.Budget, id string) { b.ID = id },
		core.Budget.Validate,
	)}
}

// AccountUpdate is what a bank sync reports about one account. Zero fields
// leave the stored value unchanged, except Balance which is always taken.
type AccountUpdate struct {
	AccountID   string             `json:"accountId"`
	Name        string             `json:"name,omitempty"`
	Institution string             `json:"institution,omitempty"`
	Type        string             `json:"type,omitempty"`
	Balance     core.Money         `json:"balance"`
	Status      core.AccountStatus `json:"status,omitempty"`
	LastSync    time.Time          `json:"lastSync"`
}

type Accounts struct {
	*Collection[core.BankAccount]
}

func NewAccounts() *Accounts {
	return &Accounts{newCollection("account",
		func(a core.BankAccount) string { return a.ID },
		func(a *core.BankAccount, id string) { a.ID = id },
		core.BankAccount.Validate,
	)}
}

// Upsert merges u into the stored account, creating it when unknown.
func (a *Accounts) Upsert(u AccountUpdate) (core.BankAccount, error) {
	if u.AccountID == "" {
		return core.BankAccount{}, core.NewValidationError("accountId", core.ErrEmptyID)
	}
	return a.mutate(u.AccountID, func(cur core.BankAccount, found bool) (core.BankAccount, error) {
		if !found {
			cur.Status = core.StatusConnected
		}
		if u.Name != "" {
			cur.Name = u.Name
		}
		if u.Institution != "" {
			cur.Institution = u.Institution
		}
		if u.Type != "" {
			cur.Type = u.Type
		}
		cur.Balance = u.Balance
		if u.Status != "" {
			cur.Status = u.Status
		}
		if !u.LastSync.IsZero() {
			cur.LastSync = u.LastSync
		}
		return cur, nil
	})
}

// SetStatus changes the status of a known account.
func (a *Accounts) SetStatus(id string, status core.AccountStatus) (core.BankAccount, error) {
	if !status.Valid() {
		return core.BankAccount{}, core.NewValidationError("status", core.ErrInvalidStatus)
	}
	return a.mutate(id, func(cur core.BankAccount, found bool) (core.BankAccount, error) {
		if !found {
			return cur, core.NewNotFound("account", id)
		}
		cur.Status = status
		return cur, nil
	})
}

// Connected returns the accounts whose status is connected. Accounts in the
// error state are only retried by an explicit per-account sync.
func (a *Accounts) Connected() []core.BankAccount {
	var out []core.BankAccount
	for _, acc := range a.List() {
		if acc.Status == core.StatusConnected {
			out = append(out, acc)
		}
	}
	return out
}
