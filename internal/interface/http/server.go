// Package http exposes the progress engine over a JSON REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/alem-hub/alem-academy/internal/application/command"
	"github.com/alem-hub/alem-academy/internal/application/query"
	"github.com/alem-hub/alem-academy/internal/interface/http/handlers"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the context of every API request.
	RequestTimeout time.Duration

	MaxHeaderBytes int
	MaxBodyBytes   int64

	// AllowedOrigins - allowed origins for CORS. Empty disables CORS.
	AllowedOrigins []string

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int

	// JWTSecret verifies learner access tokens (HS256).
	JWTSecret string

	// JWTIssuer is the expected "iss" claim. Empty skips the check.
	JWTIssuer string

	// ServiceName names the tracing spans of the router.
	ServiceName string

	// Version is reported by /health and in response meta.
	Version string

	// Debug switches gin to debug mode.
	Debug bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		RequestTimeout:     10 * time.Second,
		MaxHeaderBytes:     1 << 20, // 1 MB
		MaxBodyBytes:       64 << 10,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 300,
		ServiceName:        "alem-academy",
		Version:            "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Command Handlers (CQRS Write Side)
	ToggleCompletionHandler *command.ToggleCompletionHandler
	EnrollHandler           *command.EnrollHandler

	// Query Handlers (CQRS Read Side)
	GetProgressHandler       *query.GetProgressHandler
	GetCertificateHandler    *query.GetCertificateHandler
	GetCourseOutlineHandler  *query.GetCourseOutlineHandler
	GetItemNavigationHandler *query.GetItemNavigationHandler
	VerifyCertificateHandler *query.VerifyCertificateHandler

	Logger *logger.Logger

	// Health Check Dependencies
	HealthChecker handlers.HealthChecker
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	engine     *gin.Engine
	auth       *handlers.TokenAuth
	logger     *logger.Logger

	rateLimiter *rateLimiter

	mu      sync.Mutex
	running bool
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: config,
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.logger = s.logger.With(logger.Component("http"))
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewNoopHealthChecker()
	}

	s.auth = handlers.NewTokenAuth(config.JWTSecret, config.JWTIssuer, abortJSON)

	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              config.Address(),
		Handler:           s.engine,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Auth returns the token authenticator.
func (s *Server) Auth() *handlers.TokenAuth {
	return s.auth
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupMiddleware() {
	s.engine.Use(handlers.Recovery(s.logger, abortJSON))
	s.engine.Use(otelgin.Middleware(s.config.ServiceName))
	s.engine.Use(handlers.RequestID(s.logger))
	s.engine.Use(handlers.AccessLog(s.logger))
	s.engine.Use(handlers.SecurityHeaders())

	if len(s.config.AllowedOrigins) > 0 {
		corsCfg := cors.Config{
			AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:  []string{"Authorization", "Content-Type", handlers.HeaderRequestID},
			ExposeHeaders: []string{handlers.HeaderRequestID},
			MaxAge:        24 * time.Hour,
		}
		if len(s.config.AllowedOrigins) == 1 && s.config.AllowedOrigins[0] == "*" {
			corsCfg.AllowAllOrigins = true
		} else {
			corsCfg.AllowOrigins = s.config.AllowedOrigins
			corsCfg.AllowCredentials = true
		}
		s.engine.Use(cors.New(corsCfg))
	}

	if s.rateLimiter != nil {
		s.engine.Use(s.rateLimitMiddleware())
	}
	if s.config.MaxBodyBytes > 0 {
		s.engine.Use(handlers.RequestSizeLimit(s.config.MaxBodyBytes))
	}

	s.engine.NoRoute(func(c *gin.Context) {
		writeJSONError(c, http.StatusNotFound, "not_found", "Route not found")
	})
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/healthz", s.handleHealth) // Kubernetes alias
	s.engine.GET("/ready", s.handleReady)
	s.engine.GET("/live", s.handleLive)
	s.engine.GET("/", s.handleRoot)

	api := s.engine.Group("/api/v1")
	api.Use(s.requestTimeout())

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Public Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	api.GET("/certificates/verify/:code", s.handleVerifyCertificate)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Learner Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	learner := api.Group("/")
	learner.Use(s.auth.RequireLearner(), handlers.NoCache())
	{
		learner.POST("/courses/:courseId/enrollment", s.handleEnroll)
		learner.GET("/courses/:courseId/progress", s.handleGetProgress)
		learner.GET("/courses/:courseId/outline", s.handleGetCourseOutline)
		learner.GET("/courses/:courseId/certificate", s.handleGetCertificate)
		learner.GET("/items/:itemId", s.handleGetItemNavigation)
		learner.PUT("/items/:itemId/completion", s.handleToggleCompletion)
	}
}

// requestTimeout bounds API request contexts.
func (s *Server) requestTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.RequestTimeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// rateLimitMiddleware implements per-IP rate limiting.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			abortJSON(c, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := prune(rl.requests[key], now.Add(-rl.window))

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		windowStart := time.Now().Add(-rl.window)
		for key, requests := range rl.requests {
			if valid := prune(requests, windowStart); len(valid) == 0 {
				delete(rl.requests, key)
			} else {
				rl.requests[key] = valid
			}
		}
		rl.mu.Unlock()
	}
}

// prune drops timestamps at or before windowStart.
func prune(requests []time.Time, windowStart time.Time) []time.Time {
	valid := requests[:0:0]
	for _, t := range requests {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	return valid
}
