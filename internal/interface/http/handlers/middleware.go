// Package handlers contains HTTP health checks and middleware.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/pkg/logger"
)

// Gin context keys set by the middleware in this file.
const (
	ContextKeyRequestID = "request_id"
	ContextKeyLearnerID = "learner_id"

	HeaderRequestID = "X-Request-ID"
)

// AbortFunc writes an error envelope and aborts the chain. The server injects
// its own so middleware errors share the API response shape.
type AbortFunc func(c *gin.Context, status int, code, message string)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// LearnerClaims are the claims the auth collaborator puts into access tokens.
// The subject is the learner id.
type LearnerClaims struct {
	jwt.RegisteredClaims
}

// TokenAuth resolves the learner from an HS256 bearer token.
type TokenAuth struct {
	secret []byte
	issuer string
	abort  AbortFunc
}

// NewTokenAuth creates a token authenticator. An empty issuer skips the
// issuer check.
func NewTokenAuth(secret, issuer string, abort AbortFunc) *TokenAuth {
	return &TokenAuth{secret: []byte(secret), issuer: issuer, abort: abort}
}

// Parse validates a token and returns its learner id.
func (a *TokenAuth) Parse(token string) (shared.LearnerID, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &LearnerClaims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*LearnerClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid or expired token")
	}
	return shared.NewLearnerID(claims.Subject)
}

// Sign issues a token for learnerID. Used by tests and local tooling; real
// tokens come from the auth collaborator.
func (a *TokenAuth) Sign(learnerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := LearnerClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   learnerID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// RequireLearner rejects requests without a valid bearer token and stores the
// learner id under ContextKeyLearnerID.
func (a *TokenAuth) RequireLearner() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			a.abort(c, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
			return
		}
		learnerID, err := a.Parse(token)
		if err != nil {
			a.abort(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}
		c.Set(ContextKeyLearnerID, learnerID)
		c.Next()
	}
}

// LearnerFrom returns the learner set by RequireLearner.
func LearnerFrom(c *gin.Context) (shared.LearnerID, bool) {
	v, ok := c.Get(ContextKeyLearnerID)
	if !ok {
		return "", false
	}
	id, ok := v.(shared.LearnerID)
	return id, ok
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST ID / LOGGING / RECOVERY
// ══════════════════════════════════════════════════════════════════════════════

// RequestID takes X-Request-ID from the client or generates one, and attaches
// a request scoped logger to the request context.
func RequestID(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), log.WithRequestID(id)))
		c.Next()
	}
}

// RequestIDFrom returns the id set by RequestID.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// AccessLog writes one line per request.
func AccessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", status),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()),
			logger.String("ip", c.ClientIP()),
			logger.String("request_id", RequestIDFrom(c)),
		}
		if learnerID, ok := LearnerFrom(c); ok {
			fields = append(fields, logger.LearnerID(learnerID.String()))
		}

		switch {
		case status >= 500:
			log.Error("http request", fields...)
		case status >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 envelope.
func Recovery(log *logger.Logger, abort AbortFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", c.Request.URL.Path),
					logger.String("request_id", RequestIDFrom(c)),
				)
				abort(c, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HEADERS AND LIMITS
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeaders adds security-related headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// NoCache marks learner specific responses as uncacheable.
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Cache-Control", "no-store")
		c.Next()
	}
}

// RequestSizeLimit caps request bodies at maxBytes.
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
