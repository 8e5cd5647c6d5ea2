package handler

import (
	"net/http"
	"strings"
	"time"

	"ignitia/pkg/apperr"
	"ignitia/pkg/auth"
	"ignitia/pkg/logger"
	"ignitia/pkg/metrics"
	"ignitia/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-ID"

	ctxUserID = "user_id"
	ctxRole   = "role"
)

// RequestIDMiddleware tags the request, its response and its context logger
// with a request id, reusing the caller's when present.
func RequestIDMiddleware(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		ctx := base.WithContext(c.Request.Context())
		ctx = logger.WithRequestID(ctx, reqID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// LoggerMiddleware writes one access line per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if query != "" {
			path = path + "?" + query
		}
		status := c.Writer.Status()
		event := zerolog.Ctx(c.Request.Context()).Info()
		if status >= http.StatusInternalServerError {
			event = zerolog.Ctx(c.Request.Context()).Warn()
		}
		event.Str("component", "http").
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Msg("request handled")
	}
}

// MetricsMiddleware counts requests by route template.
func MetricsMiddleware(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.Observe(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// RecoveryMiddleware turns a panic into an internal error response.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				zerolog.Ctx(c.Request.Context()).Error().
					Str("component", "http").
					Interface("panic", r).
					Msg("recovered from panic")
				response.Fail(c, apperr.Newf(apperr.CodeInternal, "panic: %v", r))
			}
		}()
		c.Next()
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthMiddleware validates the bearer token and stores the caller's identity
// in the gin context and the context logger.
func AuthMiddleware(cfg auth.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
			response.Unauthorized(c, "missing credentials")
			return
		}
		token := strings.TrimSpace(raw[7:])
		if token == "" {
			response.Unauthorized(c, "missing credentials")
			return
		}

		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			response.Fail(c, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid token"))
			return
		}

		c.Set(ctxUserID, claims.UserID())
		c.Set(ctxRole, claims.Role)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID()))
		c.Next()
	}
}

// RequireRole admits only callers whose token carries role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != role {
			response.Fail(c, apperr.New(apperr.CodeForbidden, "insufficient role"))
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
