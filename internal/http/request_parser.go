// Package http serves the fintrack JSON API.
//
// This file implements utilities for parsing and validating request bodies
// and query parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

const (
	maxBodyBytes       = 1 << 20
	defaultRecentLimit = 5
	maxRecentLimit     = 100
)

// decodeJSON reads one JSON object from the request body into dst. Unknown
// fields, trailing data and oversized bodies are rejected as malformed.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrInvalidDate) {
			return core.NewValidationError("body", err)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errMalformedBody)
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", errMalformedBody)
	}
	return nil
}

// transactionRequest is the body of POST and PUT /api/transactions.
type transactionRequest struct {
	Type        core.TransactionType `json:"type"`
	Amount      core.Money           `json:"amount"`
	Description string               `json:"description"`
	CategoryID  string               `json:"categoryId"`
	Date        core.Date            `json:"date"`
}

// toTransaction builds a manual entry; a missing date means today.
func (req transactionRequest) toTransaction(today core.Date) core.Transaction {
	date := req.Date
	if date.IsZero() {
		date = today
	}
	return core.Transaction{
		Type:        req.Type,
		Amount:      req.Amount,
		Description: sanitizeInput(req.Description),
		CategoryID:  strings.TrimSpace(req.CategoryID),
		Date:        date,
		Source:      core.SourceManual,
	}
}

type categoryRequest struct {
	Name  string               `json:"name"`
	Type  core.TransactionType `json:"type"`
	Color string               `json:"color"`
}

func (req categoryRequest) toCategory() core.Category {
	return core.Category{
		Name:  sanitizeInput(req.Name),
		Type:  req.Type,
		Color: strings.TrimSpace(req.Color),
	}
}

type budgetRequest struct {
	CategoryID string            `json:"categoryId"`
	Amount     core.Money        `json:"amount"`
	Period     core.BudgetPeriod `json:"period"`
}

func (req budgetRequest) toBudget() core.Budget {
	return core.Budget{
		CategoryID: strings.TrimSpace(req.CategoryID),
		Amount:     req.Amount,
		Period:     req.Period,
	}
}

type linkTokenRequest struct {
	UserID string `json:"userId"`
}

type exchangeRequest struct {
	PublicToken string `json:"publicToken"`
}

// parseFilter reads q, category, type, from and to.
func parseFilter(query url.Values) (ledger.Filter, error) {
	f := ledger.Filter{
		Search:     sanitizeInput(query.Get("q")),
		CategoryID: strings.TrimSpace(query.Get("category")),
		Type:       core.TransactionType(strings.TrimSpace(query.Get("type"))),
	}
	var err error
	if f.From, err = parseOptionalDate(query, "from"); err != nil {
		return ledger.Filter{}, err
	}
	if f.To, err = parseOptionalDate(query, "to"); err != nil {
		return ledger.Filter{}, err
	}
	return f, f.Validate()
}

func parseOptionalDate(query url.Values, key string) (core.Date, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.NewValidationError(key, err)
	}
	return d, nil
}

// parsePeriod reads ?period=, defaulting to month.
func parsePeriod(query url.Values) (core.Period, error) {
	p := core.Period(strings.ToLower(strings.TrimSpace(query.Get("period"))))
	if p == "" {
		return core.PeriodMonth, nil
	}
	if !p.Valid() {
		return "", core.NewValidationError("period", fmt.Errorf("period must be month, year or all, got %q", p))
	}
	return p, nil
}

// parseLimit reads ?limit=, clamped to [1, maxRecentLimit].
func parseLimit(query url.Values) int {
	n, err := strconv.Atoi(strings.TrimSpace(query.Get("limit")))
	if err != nil || n <= 0 {
		return defaultRecentLimit
	}
	if n > maxRecentLimit {
		return maxRecentLimit
	}
	return n
}

// parseNow reads ?now=YYYY-MM-DD as a date in now's location, or returns now.
func parseNow(query url.Values, now time.Time) (time.Time, error) {
	v := strings.TrimSpace(query.Get("now"))
	if v == "" {
		return now, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return time.Time{}, core.NewValidationError("now", err)
	}
	y, m, day := d.Date()
	return time.Date(y, m, day, 12, 0, 0, 0, now.Location()), nil
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
