package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantMalformed bool
		wantInvalid   bool
	}{
		{name: "valid", body: `{"type":"expense","amount":12.5,"description":"Lunch","categoryId":"1","date":"2024-03-01"}`},
		{name: "amount as string", body: `{"type":"expense","amount":"12,50","description":"Lunch","categoryId":"1"}`},
		{name: "empty", body: ``, wantMalformed: true},
		{name: "syntax error", body: `{"type":`, wantMalformed: true},
		{name: "unknown field", body: `{"foo":1}`, wantMalformed: true},
		{name: "trailing data", body: `{"type":"expense"}{"type":"income"}`, wantMalformed: true},
		{name: "bad amount", body: `{"amount":"abc"}`, wantInvalid: true},
		{name: "bad date", body: `{"date":"2024-13-45"}`, wantInvalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var req transactionRequest
			err := decodeJSON(httptest.NewRecorder(), r, &req)

			if got := errors.Is(err, errMalformedBody); got != tt.wantMalformed {
				t.Errorf("malformed = %v, want %v (err = %v)", got, tt.wantMalformed, err)
			}
			if got := errors.Is(err, core.ErrValidation); got != tt.wantInvalid {
				t.Errorf("invalid = %v, want %v (err = %v)", got, tt.wantInvalid, err)
			}
		})
	}
}

func TestTransactionRequestDefaultsDate(t *testing.T) {
	today := core.NewDate(2024, 3, 15)
	tx := transactionRequest{Type: core.Expense, Description: "  Coffee\x00 ", CategoryID: " 1 "}.toTransaction(today)

	if !tx.Date.Equal(today) {
		t.Errorf("Date = %s, want %s", tx.Date, today)
	}
	if tx.Description != "Coffee" {
		t.Errorf("Description = %q", tx.Description)
	}
	if tx.CategoryID != "1" || tx.Source != core.SourceManual {
		t.Errorf("unexpected transaction %+v", tx)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		wantErr bool
		check   func(t *testing.T, q url.Values)
	}{
		{name: "empty", query: url.Values{}},
		{name: "all fields", query: url.Values{"q": {"coffee"}, "category": {"1"}, "type": {"expense"}, "from": {"2024-01-01"}, "to": {"2024-01-31"}}},
		{name: "bad type", query: url.Values{"type": {"transfer"}}, wantErr: true},
		{name: "bad from", query: url.Values{"from": {"yesterday"}}, wantErr: true},
		{name: "bad to", query: url.Values{"to": {"2024-02-30"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := parseFilter(tt.query)
			if tt.wantErr {
				if !errors.Is(err, core.ErrValidation) {
					t.Errorf("parseFilter() error = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFilter() error = %v", err)
			}
			if f.Search != tt.query.Get("q") || f.CategoryID != tt.query.Get("category") {
				t.Errorf("filter = %+v", f)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    core.Period
		wantErr bool
	}{
		{"", core.PeriodMonth, false},
		{"month", core.PeriodMonth, false},
		{"YEAR", core.PeriodYear, false},
		{"all", core.PeriodAll, false},
		{"week", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePeriod(url.Values{"period": {tt.in}})
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePeriod(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parsePeriod(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", defaultRecentLimit},
		{"abc", defaultRecentLimit},
		{"-3", defaultRecentLimit},
		{"10", 10},
		{"1000", maxRecentLimit},
	}
	for _, tt := range tests {
		if got := parseLimit(url.Values{"limit": {tt.in}}); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseNow(t *testing.T) {
	now := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)

	got, err := parseNow(url.Values{}, now)
	if err != nil || !got.Equal(now) {
		t.Errorf("parseNow(empty) = %v, %v", got, err)
	}

	got, err = parseNow(url.Values{"now": {"2024-01-07"}}, now)
	if err != nil {
		t.Fatal(err)
	}
	if core.DateOf(got).String() != "2024-01-07" {
		t.Errorf("parseNow() = %v", got)
	}

	if _, err := parseNow(url.Values{"now": {"07/01/2024"}}, now); !errors.Is(err, core.ErrValidation) {
		t.Errorf("parseNow(bad) error = %v", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"a\x00b\x07c", "abc"},
		{"line1\nline2\ttab", "line1\nline2\ttab"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
