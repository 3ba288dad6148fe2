package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fintrack/internal/banksync"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// SyncRequester enqueues a sync for the worker; accountID "" means every
// connected account.
type SyncRequester interface {
	RequestSync(ctx context.Context, accountID, reason string) error
}

// Options wires the server's collaborators. Syncer, Linker and Requester
// are optional.
type Options struct {
	Tracker   *services.Tracker
	Syncer    *services.BankSyncer
	Linker    banksync.Linker
	Requester SyncRequester

	FrontendURL  string
	RateLimitRPM int
	Version      string
	Logger       *applog.Logger
	Now          func() time.Time
}

type Server struct {
	http.Server
	tracker   *services.Tracker
	syncer    *services.BankSyncer
	linker    banksync.Linker
	requester SyncRequester
	version   string
	logger    *applog.Logger
	now       func() time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitRPM > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitRPM
	}

	s := &Server{
		tracker:   opts.Tracker,
		syncer:    opts.Syncer,
		linker:    opts.Linker,
		requester: opts.Requester,
		version:   opts.Version,
		logger:    logger.WithComponent(applog.ComponentHTTP),
		now:       now,
		limiter:   ratelimit.NewLimiter(rlConfig),
		detector:  security.NewDetector(logger),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(opts.FrontendURL),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(frontendURL string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Middleware)
	r.Use(applog.Middleware(s.logger, trace.FromRequest))
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(security.CORSMiddleware(frontendURL))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, handleRateLimited))

		r.Get("/health", s.handleAPIHealth)

		r.Get("/summary", s.handleSummary)
		r.Get("/summary/categories", s.handleExpenseByCategory)

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Get("/recent", s.handleRecentTransactions)
			r.Get("/{id}", s.handleGetTransaction)
			r.Put("/{id}", s.handleUpdateTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Get("/{id}", s.handleGetCategory)
			r.Put("/{id}", s.handleUpdateCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
		})

		r.Route("/budgets", func(r chi.Router) {
			r.Get("/", s.handleListBudgets)
			r.Post("/", s.handleCreateBudget)
			r.Get("/status", s.handleListBudgetStatuses)
			r.Put("/{id}", s.handleUpdateBudget)
			r.Delete("/{id}", s.handleDeleteBudget)
			r.Get("/{id}/status", s.handleBudgetStatus)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Get("/{id}", s.handleGetAccount)
			r.Delete("/{id}", s.handleDisconnectAccount)
			r.Post("/{id}/sync", s.handleSyncAccount)
		})
		r.Post("/sync", s.handleSyncAll)

		r.Post("/plaid/link-token", s.handleCreateLinkToken)
		r.Post("/plaid/exchange", s.handleExchangeToken)
		r.Post("/webhook", s.handleWebhook)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no route for " + r.URL.Path).Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed", r.Method+" "+r.URL.Path).Write(w)
	})
	return r
}

func handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldPath, r.URL.Path,
		applog.FieldMethod, r.Method)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded", "try again later").Write(w)
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics exposes the middleware counters for the health endpoint.
type Metrics struct {
	Requests  trace.Metrics              `json:"requests"`
	RateLimit ratelimit.Metrics          `json:"rateLimit"`
	Security  security.DetectionMetrics `json:"security"`
}

func (s *Server) Metrics() Metrics {
	return Metrics{
		Requests:  s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
	}
}
