package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/banksync/demo"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/store/memory"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type recordingRequester struct {
	mu      sync.Mutex
	reasons []string
	err     error
}

func (r *recordingRequester) RequestSync(_ context.Context, accountID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.reasons = append(r.reasons, reason)
	return nil
}

type testEnv struct {
	srv     *Server
	tracker *services.Tracker
	gateway *demo.Gateway
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	clock := func() time.Time { return testNow }
	tr, err := services.Open(context.Background(), memory.New(), services.TrackerOptions{
		Now:    clock,
		Logger: applog.Discard(),
	})
	require.NoError(t, err)

	gw := demo.New(demo.WithClock(clock))
	cfg := services.DefaultBankSyncerConfig()
	cfg.MaxRetries = 0
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond

	opts := Options{
		Tracker:      tr,
		Syncer:       services.NewBankSyncer(tr, gw, nil, cfg, applog.Discard()),
		Linker:       gw,
		RateLimitRPM: 10000,
		Version:      "test",
		Logger:       applog.Discard(),
		Now:          clock,
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv := NewServer(":0", opts)
	t.Cleanup(func() {
		srv.limiter.Stop()
		tr.Close()
	})
	return &testEnv{srv: srv, tracker: tr, gateway: gw}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rr := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, want, rr.Body.String(), path)
	}

	rr := env.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[healthResponse](t, rr)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not found", decode[ErrorBody](t, rr).Error)

	rr = env.do(t, http.MethodPatch, "/api/transactions", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/transactions",
		`{"type":"expense","amount":42.5,"description":"Groceries","categoryId":"1"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[core.Transaction](t, rr)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(4250), created.Amount.Cents)
	assert.Equal(t, "2024-03-15", created.Date.String(), "missing date defaults to today")
	assert.Equal(t, core.SourceManual, created.Source)

	rr = env.do(t, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Transaction](t, rr), 1)

	rr = env.do(t, http.MethodGet, "/api/transactions?type=income", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())

	rr = env.do(t, http.MethodGet, "/api/transactions?q=grocer", "")
	assert.Len(t, decode[[]core.Transaction](t, rr), 1)

	rr = env.do(t, http.MethodPut, "/api/transactions/"+created.ID,
		`{"type":"expense","amount":"50","description":"Groceries","categoryId":"1","date":"2024-03-10"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[core.Transaction](t, rr)
	assert.Equal(t, int64(5000), updated.Amount.Cents)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	rr = env.do(t, http.MethodGet, "/api/transactions/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/transactions/recent?limit=1", "")
	assert.Len(t, decode[[]core.Transaction](t, rr), 1)

	rr = env.do(t, http.MethodDelete, "/api/transactions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodDelete, "/api/transactions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code, "deleting a missing id succeeds")

	rr = env.do(t, http.MethodGet, "/api/transactions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTransactionErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"zero amount", http.MethodPost, "/api/transactions", `{"type":"expense","amount":0,"description":"x","categoryId":"1"}`, http.StatusUnprocessableEntity},
		{"bad type", http.MethodPost, "/api/transactions", `{"type":"gift","amount":1,"description":"x","categoryId":"1"}`, http.StatusUnprocessableEntity},
		{"bad amount", http.MethodPost, "/api/transactions", `{"type":"expense","amount":"lots","description":"x"}`, http.StatusUnprocessableEntity},
		{"overflowing amount", http.MethodPost, "/api/transactions", `{"type":"expense","amount":184467440737095516.17,"description":"x","categoryId":"1"}`, http.StatusUnprocessableEntity},
		{"exponent amount", http.MethodPost, "/api/transactions", `{"type":"expense","amount":1e20,"description":"x","categoryId":"1"}`, http.StatusUnprocessableEntity},
		{"malformed", http.MethodPost, "/api/transactions", `{"type":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/transactions", `{"kind":"expense"}`, http.StatusBadRequest},
		{"update missing", http.MethodPut, "/api/transactions/nope", `{"type":"expense","amount":1,"description":"x","categoryId":"1"}`, http.StatusNotFound},
		{"bad filter date", http.MethodGet, "/api/transactions?from=2024-99-01", "", http.StatusUnprocessableEntity},
		{"bad period", http.MethodGet, "/api/summary?period=week", "", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode[ErrorBody](t, rr).Error)
		})
	}
}

func TestListTransactionsNewestFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, date := range []string{"2024-01-01", "2024-03-01", "2024-02-01"} {
		body := `{"type":"expense","amount":10,"description":"Coffee","categoryId":"1","date":"` + date + `"}`
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/transactions", body).Code)
	}

	rr := env.do(t, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var dates []string
	for _, tx := range decode[[]core.Transaction](t, rr) {
		dates = append(dates, tx.Date.String())
	}
	assert.Equal(t, []string{"2024-03-01", "2024-02-01", "2024-01-01"}, dates)
}

func TestSummaryEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []string{
		`{"type":"income","amount":1000,"description":"Salary","categoryId":"7","date":"2024-03-01"}`,
		`{"type":"expense","amount":250,"description":"Rent","categoryId":"5","date":"2024-03-02"}`,
		`{"type":"expense","amount":50,"description":"Dinner","categoryId":"1","date":"2023-12-20"}`,
	} {
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/transactions", body).Code)
	}

	rr := env.do(t, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	month := decode[core.PeriodSummary](t, rr)
	assert.Equal(t, int64(100000), month.TotalIncome.Cents)
	assert.Equal(t, int64(25000), month.TotalExpense.Cents)
	assert.Equal(t, int64(75000), month.Balance.Cents)
	assert.InDelta(t, 75.0, month.SavingsRate, 0.001)

	rr = env.do(t, http.MethodGet, "/api/summary?period=all", "")
	assert.Equal(t, int64(30000), decode[core.PeriodSummary](t, rr).TotalExpense.Cents)

	rr = env.do(t, http.MethodGet, "/api/summary/categories?period=year", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rows := decode[[]core.CategoryAmount](t, rr)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bills & Utilities", rows[0].Name)
}

func TestCategoryEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/categories", "")
	assert.Len(t, decode[[]core.Category](t, rr), 9)

	rr = env.do(t, http.MethodPost, "/api/categories", `{"name":"Pets","type":"expense","color":"red"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/categories", `{"name":"Pets","type":"expense","color":"#123abc"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	pets := decode[core.Category](t, rr)

	rr = env.do(t, http.MethodPut, "/api/categories/"+pets.ID, `{"name":"Pet care","type":"expense","color":"#123abc"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Pet care", decode[core.Category](t, rr).Name)

	rr = env.do(t, http.MethodDelete, "/api/categories/"+pets.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/categories/"+pets.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBudgetEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/budgets", `{"categoryId":"1","amount":100,"period":"fortnightly"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/budgets", `{"categoryId":"1","amount":100,"period":"monthly"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	b := decode[core.Budget](t, rr)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/transactions",
		`{"type":"expense","amount":150,"description":"Restaurant","categoryId":"1","date":"2024-03-05"}`).Code)

	rr = env.do(t, http.MethodGet, "/api/budgets/"+b.ID+"/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	st := decode[core.BudgetStatus](t, rr)
	assert.Equal(t, int64(15000), st.Spent.Cents)
	assert.InDelta(t, 150.0, st.Percentage, 0.001)
	assert.True(t, st.OverBudget)
	assert.Equal(t, "2024-03-01", st.WindowStart.String())

	rr = env.do(t, http.MethodGet, "/api/budgets/"+b.ID+"/status?now=2024-04-10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(0), decode[core.BudgetStatus](t, rr).Spent.Cents)

	rr = env.do(t, http.MethodGet, "/api/budgets/"+b.ID+"/status?now=soon", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/budgets/missing/status", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/budgets/status", "")
	assert.Len(t, decode[[]core.BudgetStatus](t, rr), 1)

	rr = env.do(t, http.MethodPut, "/api/budgets/"+b.ID, `{"categoryId":"1","amount":200,"period":"monthly"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(20000), decode[core.Budget](t, rr).Amount.Cents)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/budgets/"+b.ID, "").Code)
	assert.Equal(t, "[]\n", env.do(t, http.MethodGet, "/api/budgets", "").Body.String())
}

func TestLinkAndSync(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/plaid/link-token", `{"userId":"u1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, decode[linkTokenResponse](t, rr).LinkToken)

	rr = env.do(t, http.MethodPost, "/api/plaid/link-token", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/plaid/exchange", `{"publicToken":"public-demo"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	linked := decode[[]core.BankAccount](t, rr)
	require.Len(t, linked, 3)
	assert.Equal(t, core.StatusConnected, linked[0].Status)

	rr = env.do(t, http.MethodPost, "/api/accounts/acc_1/sync", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode[services.SyncOutcome](t, rr)
	assert.Equal(t, 3, out.Result.Imported)

	rr = env.do(t, http.MethodPost, "/api/accounts/acc_1/sync", "")
	assert.Equal(t, 3, decode[services.SyncOutcome](t, rr).Result.Skipped)

	rr = env.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, rr.Code)
	report := decode[services.SyncReport](t, rr)
	assert.Len(t, report.Accounts, 3)
	assert.Equal(t, 0, report.Failed)

	rr = env.do(t, http.MethodPost, "/api/accounts/unknown/sync", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	env.gateway.FailNext(1)
	rr = env.do(t, http.MethodPost, "/api/accounts/acc_2/sync", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/accounts/acc_2", "")
	assert.Equal(t, core.StatusError, decode[core.BankAccount](t, rr).Status)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/accounts/acc_3", "").Code)
	rr = env.do(t, http.MethodGet, "/api/accounts", "")
	assert.Len(t, decode[[]core.BankAccount](t, rr), 2)
	assert.Len(t, env.tracker.RecentTransactions(100), 3, "transactions survive disconnect")
}

func TestSyncAllQueuesWhenBrokerConfigured(t *testing.T) {
	req := &recordingRequester{}
	env := newTestEnv(t, func(o *Options) { o.Requester = req })

	rr := env.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, []string{"manual"}, req.reasons)

	req.err = errors.New("broker down")
	rr = env.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusOK, rr.Code, "falls back to an inline sync")
}

func TestWebhook(t *testing.T) {
	req := &recordingRequester{}
	env := newTestEnv(t, func(o *Options) { o.Requester = req })

	rr := env.do(t, http.MethodPost, "/api/webhook", `{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"i1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ignored", decode[statusResponse](t, rr).Status)
	assert.Empty(t, req.reasons)

	rr = env.do(t, http.MethodPost, "/api/webhook",
		`{"webhook_type":"TRANSACTIONS","webhook_code":"DEFAULT_UPDATE","item_id":"i1","new_transactions":2}`)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, []string{"webhook"}, req.reasons)

	rr = env.do(t, http.MethodPost, "/api/webhook", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLinkUnsupportedWithoutLinker(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Linker = nil
		o.Syncer = nil
	})
	rr := env.do(t, http.MethodPost, "/api/plaid/link-token", `{"userId":"u1"}`)
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestSuspiciousRequestRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/transactions?q=1+union+select+*", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, int64(1), env.srv.Metrics().Security.SuspiciousRequests)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.RateLimitRPM = 2 })
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/categories", "").Code)
	}
	rr := env.do(t, http.MethodGet, "/api/categories", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code, "probes are not rate limited")
}
