// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/starledger/internal/auth"
	"github.com/mbd888/starledger/internal/circuitbreaker"
	"github.com/mbd888/starledger/internal/config"
	"github.com/mbd888/starledger/internal/credential"
	"github.com/mbd888/starledger/internal/directory"
	"github.com/mbd888/starledger/internal/health"
	"github.com/mbd888/starledger/internal/logging"
	"github.com/mbd888/starledger/internal/metrics"
	"github.com/mbd888/starledger/internal/query"
	"github.com/mbd888/starledger/internal/ratelimit"
	"github.com/mbd888/starledger/internal/realtime"
	"github.com/mbd888/starledger/internal/retry"
	"github.com/mbd888/starledger/internal/security"
	"github.com/mbd888/starledger/internal/stars"
	"github.com/mbd888/starledger/internal/traces"
	"github.com/mbd888/starledger/internal/transport"
	"github.com/mbd888/starledger/internal/updates"
	"github.com/mbd888/starledger/internal/validation"
	"github.com/mbd888/starledger/migrations"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *sql.DB // nil if using in-memory
	transport   query.Transport
	breaker     *circuitbreaker.Breaker
	runner      *query.Runner
	store       directory.Store
	journal     updates.Journal
	hub         *realtime.Hub
	manager     *stars.Manager
	health      *health.Registry
	rateLimiter *ratelimit.Limiter
	router      *gin.Engine
	httpSrv     *http.Server

	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTransport replaces the HTTP ledger transport (for testing).
func WithTransport(t query.Transport) Option {
	return func(s *Server) {
		s.transport = t
	}
}

// WithDirectoryStore replaces the directory store chosen from the config.
func WithDirectoryStore(store directory.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Storage: Postgres if DATABASE_URL is set, otherwise in-memory
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}

		s.db = db
		if s.store == nil {
			s.store = directory.NewPostgresStore(db)
		}
		s.journal = updates.NewPostgresJournal(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		if s.store == nil {
			s.store = directory.NewMemoryStore()
		}
		s.journal = updates.NewMemoryJournal()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Ledger transport with per-method circuit breaker and retries
	s.breaker = circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerOpenDuration)
	if s.transport == nil {
		s.transport = transport.NewHTTP(transport.Config{
			BaseURL: cfg.LedgerAPIURL,
			Token:   cfg.LedgerAPIToken,
			Timeout: cfg.RequestTimeout,
			Retry: retry.Policy{
				MaxAttempts: cfg.RetryMaxAttempts,
				BaseDelay:   cfg.RetryBaseDelay,
			},
		},
			transport.WithBreaker(s.breaker),
			transport.WithHTTPClient(&http.Client{
				Timeout:   cfg.RequestTimeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			}),
		)
	}
	s.runner = query.NewRunner(s.transport)

	s.hub = realtime.NewHub(s.logger)
	dir := directory.New(s.store, cfg.CallerUserID, cfg.CallerIsBot)
	verifier := credential.NewRemoteVerifier(s.runner, credential.WithIterations(cfg.PasswordKDFIterations))
	s.manager = stars.NewManager(s.runner, dir, verifier,
		stars.WithSink(updates.Fanout{s.hub, s.journal}),
	)
	s.logger.Info("star ledger client ready",
		"caller", cfg.CallerUserID,
		"bot", cfg.CallerIsBot,
	)

	s.health = health.NewRegistry(2 * time.Second)
	if s.db != nil {
		s.health.Register("database", health.Database(s.db))
	}
	s.health.Register("query_runner", health.Runner(s.runner.Closed))
	s.health.Register("ledger_circuits", health.Circuits(s.breaker.Open))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSAllowedOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         ratelimit.DefaultConfig().BurstSize,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", gin.WrapF(s.hub.HandleWebSocket))
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	})

	v1 := s.router.Group("/v1")
	v1.Use(auth.RequireAuth(auth.NewManager(s.cfg.APIKeys)))
	stars.NewHandler(s.manager, stars.WithJournal(s.journal)).RegisterRoutes(v1)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.health.CheckAll(c.Request.Context())

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() || s.runner.Closed() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := traces.Init(ctx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	if s.db != nil {
		g.Go(func() error {
			metrics.StartDBStatsCollector(gctx, s.db, 15*time.Second)
			return nil
		})
	}
	g.Go(func() error {
		s.logger.Info("starting server", "port", s.cfg.Port, "ledger", s.cfg.LedgerAPIURL)
		s.ready.Store(true)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutdown requested")
		return s.Shutdown()
	})

	err = g.Wait()

	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if terr := shutdownTracing(tctx); terr != nil {
		s.logger.Error("tracing shutdown error", "error", terr)
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	if s.httpSrv != nil {
		if err = s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}

	// Aborts queries still in flight with ErrRequestAborted.
	s.runner.Close()
	s.rateLimiter.Stop()

	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil {
			s.logger.Error("database close error", "error", cerr)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return err
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Manager returns the star manager shared by the HTTP and MCP surfaces.
func (s *Server) Manager() *stars.Manager {
	return s.manager
}
