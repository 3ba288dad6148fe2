// Package plaid implements the bank sync gateway on top of the Plaid API.
package plaid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"

	"fintrack/internal/banksync"
	"fintrack/internal/catalog"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

const (
	pageSize            = int32(500) // Plaid's max page size
	defaultLookbackDays = 30
	defaultClientName   = "fintrack"
	unknownInstitution  = "Unknown Bank"
)

// Config holds Plaid API configuration.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	// AccessToken is an item linked out of band. Items linked through
	// ExchangePublicToken are tracked in memory.
	AccessToken  string
	LookbackDays int
	ClientName   string
}

// Validate ensures all required fields are present.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("plaid client ID is required")
	}
	if c.Secret == "" {
		return fmt.Errorf("plaid secret is required")
	}
	if c.Environment == "" {
		return fmt.Errorf("plaid environment is required")
	}
	if c.Environment != "sandbox" && c.Environment != "production" {
		return fmt.Errorf("invalid Plaid environment: must be sandbox or production")
	}
	if c.LookbackDays < 0 {
		return fmt.Errorf("plaid lookback days must not be negative")
	}
	return nil
}

// api is the subset of the Plaid API the gateway calls.
type api interface {
	transactions(ctx context.Context, token, start, end string, accountIDs []string, offset int32) ([]plaid.Transaction, int32, error)
	accounts(ctx context.Context, token string) ([]plaid.AccountBase, error)
	linkToken(ctx context.Context, clientName, userID string) (string, error)
	exchange(ctx context.Context, publicToken string) (string, error)
}

// Client is a banksync.Gateway and banksync.Linker backed by Plaid.
type Client struct {
	api    api
	cfg    Config
	logger *applog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	tokens map[string]string // account ID -> access token
}

// NewClient creates a Plaid gateway for cfg.
func NewClient(cfg Config, logger *applog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	return newClient(cfg, &apiClient{client: plaid.NewAPIClient(configuration)}, logger), nil
}

func newClient(cfg Config, a api, logger *applog.Logger) *Client {
	if cfg.LookbackDays == 0 {
		cfg.LookbackDays = defaultLookbackDays
	}
	if cfg.ClientName == "" {
		cfg.ClientName = defaultClientName
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Client{
		api:    a,
		cfg:    cfg,
		logger: logger.WithComponent(applog.ComponentPlaid),
		now:    time.Now,
		tokens: make(map[string]string),
	}
}

func (c *Client) Name() string { return "plaid" }

func (c *Client) tokenFor(accountID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tok, ok := c.tokens[accountID]; ok {
		return tok, nil
	}
	if c.cfg.AccessToken != "" {
		return c.cfg.AccessToken, nil
	}
	return "", fmt.Errorf("plaid: no access token for account %s: %w", accountID, banksync.ErrUnknownAccount)
}

// Sync fetches the balance of accountID and its transactions over the
// lookback window.
func (c *Client) Sync(ctx context.Context, accountID string) (banksync.Result, error) {
	token, err := c.tokenFor(accountID)
	if err != nil {
		return banksync.Result{}, err
	}

	accounts, err := c.api.accounts(ctx, token)
	if err != nil {
		return banksync.Result{}, err
	}
	var update *catalog.AccountUpdate
	for _, a := range accounts {
		if a.GetAccountId() == accountID {
			u := mapAccount(a)
			update = &u
			break
		}
	}
	if update == nil {
		return banksync.Result{}, fmt.Errorf("plaid: account %s: %w", accountID, banksync.ErrUnknownAccount)
	}

	end := c.now()
	start := end.AddDate(0, 0, -c.cfg.LookbackDays)
	txs, err := c.fetchTransactions(ctx, token, accountID, start, end)
	if err != nil {
		return banksync.Result{}, err
	}

	res := banksync.Result{
		Accounts:     []catalog.AccountUpdate{*update},
		Transactions: make([]core.Transaction, 0, len(txs)),
	}
	for _, pt := range txs {
		tx, ok := mapTransaction(pt)
		if !ok {
			c.logger.WarnContext(ctx, "Skipping unusable Plaid transaction",
				"transaction_id", pt.GetTransactionId(),
				"date", pt.GetDate(),
				"amount", pt.GetAmount())
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}

	c.logger.InfoContext(ctx, "Fetched Plaid transactions",
		applog.FieldAccountID, accountID,
		"count", len(res.Transactions),
		"start_date", start.Format(time.DateOnly),
		"end_date", end.Format(time.DateOnly))
	return res, nil
}

func (c *Client) fetchTransactions(ctx context.Context, token, accountID string, start, end time.Time) ([]plaid.Transaction, error) {
	var all []plaid.Transaction
	offset := int32(0)
	for {
		page, total, err := c.api.transactions(ctx, token,
			start.Format(time.DateOnly), end.Format(time.DateOnly),
			[]string{accountID}, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		c.logger.DebugContext(ctx, "Fetched transaction batch",
			"count", len(page),
			"offset", offset,
			"total", total)

		if len(page) < int(pageSize) || int32(len(all)) >= total {
			return all, nil
		}
		offset += int32(len(page))
	}
}

// CreateLinkToken creates a Link token for Plaid Link initialization.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", core.NewValidationError("userId", core.ErrEmptyID)
	}
	return c.api.linkToken(ctx, c.cfg.ClientName, userID)
}

// ExchangePublicToken trades a Link public token for an access token and
// returns the item's accounts. Later syncs of those accounts use the new
// token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) ([]catalog.AccountUpdate, error) {
	if publicToken == "" {
		return nil, core.NewValidationError("publicToken", core.ErrEmptyID)
	}
	token, err := c.api.exchange(ctx, publicToken)
	if err != nil {
		return nil, err
	}
	accounts, err := c.api.accounts(ctx, token)
	if err != nil {
		return nil, err
	}

	now := c.now()
	out := make([]catalog.AccountUpdate, 0, len(accounts))
	c.mu.Lock()
	for _, a := range accounts {
		c.tokens[a.GetAccountId()] = token
		u := mapAccount(a)
		u.Status = core.StatusConnected
		u.LastSync = now
		out = append(out, u)
	}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Linked Plaid item", "accounts", len(out))
	return out, nil
}

// apiClient adapts *plaid.APIClient to api.
type apiClient struct {
	client *plaid.APIClient
}

func (a *apiClient) transactions(ctx context.Context, token, start, end string, accountIDs []string, offset int32) ([]plaid.Transaction, int32, error) {
	request := plaid.NewTransactionsGetRequest(token, start, end)
	options := plaid.TransactionsGetRequestOptions{
		Count:  plaid.PtrInt32(pageSize),
		Offset: plaid.PtrInt32(offset),
	}
	options.SetAccountIds(accountIDs)
	request.SetOptions(options)

	resp, _, err := a.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
	if err != nil {
		return nil, 0, wrapError("fetch transactions", err)
	}
	return resp.GetTransactions(), resp.GetTotalTransactions(), nil
}

func (a *apiClient) accounts(ctx context.Context, token string) ([]plaid.AccountBase, error) {
	request := plaid.NewAccountsGetRequest(token)
	resp, _, err := a.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*request).Execute()
	if err != nil {
		return nil, wrapError("fetch accounts", err)
	}
	return resp.GetAccounts(), nil
}

func (a *apiClient) linkToken(ctx context.Context, clientName, userID string) (string, error) {
	user := plaid.LinkTokenCreateRequestUser{ClientUserId: userID}
	request := plaid.NewLinkTokenCreateRequest(clientName, "en", []plaid.CountryCode{plaid.COUNTRYCODE_US}, user)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	resp, _, err := a.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return "", wrapError("create link token", err)
	}
	return resp.GetLinkToken(), nil
}

func (a *apiClient) exchange(ctx context.Context, publicToken string) (string, error) {
	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := a.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		return "", wrapError("exchange public token", err)
	}
	return resp.GetAccessToken(), nil
}

// wrapError turns a Plaid API error into a descriptive one. Rate limits
// and provider outages are retryable.
func wrapError(op string, err error) error {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return fmt.Errorf("plaid: %s: %w", op, err)
	}
	wrapped := fmt.Errorf("plaid: %s: %s - %s", op, plaidErr.ErrorCode, plaidErr.ErrorMessage)
	if isRetryableCode(plaidErr.ErrorCode) {
		return &banksync.RetryableError{Err: wrapped}
	}
	return wrapped
}

func isRetryableCode(code string) bool {
	switch code {
	case "RATE_LIMIT_EXCEEDED", "INTERNAL_SERVER_ERROR", "PLANNED_MAINTENANCE", "INSTITUTION_DOWN", "PRODUCT_NOT_READY":
		return true
	}
	return false
}

var (
	_ banksync.Gateway = (*Client)(nil)
	_ banksync.Linker  = (*Client)(nil)
)
