// Package banksync defines the Bank Sync Gateway: the external collaborator
// that reports account balances and normalized transactions for a linked
// bank account. Concrete gateways live in subpackages.
package banksync

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/catalog"
	"fintrack/internal/core"
)

// Result is one gateway response. Transactions are candidates for
// Ledger.ImportFromBank; their Source is forced to bank on import.
type Result struct {
	Accounts     []catalog.AccountUpdate `json:"accounts"`
	Transactions []core.Transaction      `json:"transactions"`
}

// Gateway fetches the current state of a linked account.
type Gateway interface {
	Name() string
	Sync(ctx context.Context, accountID string) (Result, error)
}

// Linker is implemented by gateways that can link new accounts through a
// provider token exchange.
type Linker interface {
	CreateLinkToken(ctx context.Context, userID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) ([]catalog.AccountUpdate, error)
}

// ErrNotConfigured is returned by the disabled gateway.
var ErrNotConfigured = errors.New("bank sync gateway not configured")

// ErrUnknownAccount is returned when the provider has no such account.
var ErrUnknownAccount = errors.New("account unknown to provider")

// RetryableError marks a failure worth retrying, such as a timeout or a
// provider rate limit.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err, or anything it wraps, is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Disabled is the gateway used when BANK_GATEWAY=none.
type Disabled struct{}

func (Disabled) Name() string { return "none" }

func (Disabled) Sync(context.Context, string) (Result, error) {
	return Result{}, ErrNotConfigured
}
