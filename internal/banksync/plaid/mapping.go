package plaid

import (
	"math"

	"github.com/plaid/plaid-go/v20/plaid"

	"fintrack/internal/catalog"
	"fintrack/internal/core"
)

// defaultCategoryID is used when a Plaid category has no mapping.
const defaultCategoryID = "1"

// categoryMap maps Plaid primary categories onto the default category IDs.
var categoryMap = map[string]string{
	"Food and Drink": "1",
	"Transportation": "2",
	"Travel":         "2",
	"Shops":          "3",
	"Recreation":     "4",
	"Service":        "5",
	"Healthcare":     "6",
	"Transfer":       "7",
}

// CategoryFor returns the category ID for a Plaid category hierarchy.
func CategoryFor(hierarchy []string) string {
	if len(hierarchy) == 0 {
		return defaultCategoryID
	}
	if id, ok := categoryMap[hierarchy[0]]; ok {
		return id
	}
	return defaultCategoryID
}

// mapTransaction converts a Plaid transaction. Plaid reports money out as a
// positive amount. Zero amounts and undated rows are not usable.
func mapTransaction(pt plaid.Transaction) (core.Transaction, bool) {
	date, err := core.ParseDate(pt.GetDate())
	if err != nil {
		return core.Transaction{}, false
	}
	amount := pt.GetAmount()
	typ := core.Expense
	if amount < 0 {
		typ = core.Income
	}
	money := core.MoneyFromFloat(math.Abs(amount))
	if money.IsZero() {
		return core.Transaction{}, false
	}

	desc := pt.GetMerchantName()
	if desc == "" {
		desc = pt.GetName()
	}
	desc = core.ClipDescription(desc)
	if desc == "" {
		return core.Transaction{}, false
	}

	return core.Transaction{
		Type:        typ,
		Amount:      money,
		Description: desc,
		CategoryID:  CategoryFor(pt.GetCategory()),
		Date:        date,
		Source:      core.SourceBank,
		AccountID:   pt.GetAccountId(),
		ExternalID:  pt.GetTransactionId(),
	}, true
}

func mapAccount(a plaid.AccountBase) catalog.AccountUpdate {
	institution := a.GetOfficialName()
	if institution == "" {
		institution = unknownInstitution
	}
	balances := a.GetBalances()
	return catalog.AccountUpdate{
		AccountID:   a.GetAccountId(),
		Name:        a.GetName(),
		Institution: institution,
		Type:        string(a.GetType()),
		Balance:     core.MoneyFromFloat(balances.GetCurrent()),
	}
}

// Webhook is the part of a Plaid webhook payload the server inspects.
type Webhook struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
}

// TriggersSync reports whether the webhook announces new transactions.
func (w Webhook) TriggersSync() bool {
	if w.WebhookType != "TRANSACTIONS" {
		return false
	}
	switch w.WebhookCode {
	case "INITIAL_UPDATE", "HISTORICAL_UPDATE", "DEFAULT_UPDATE", "SYNC_UPDATES_AVAILABLE":
		return true
	}
	return false
}
