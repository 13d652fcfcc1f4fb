// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides request correlation, caller identity, panic recovery and
// access to the request-scoped logger:
//
//   - RequestID() propagates or mints an X-Request-ID per request.
//   - Identity() records the caller's user id (X-User-ID) in the context.
//   - Recovery() turns panics into the standard JSON 500 envelope.
//   - LoggerFrom() returns the logger attached by RedactingLogger.
//
// Recommended order: RequestID, Identity, RedactingLogger, Recovery. Panics
// then carry the correlation id and are logged with request fields.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// userIDKey is where Identity stores the caller id.
	userIDKey = "userID"
	// HeaderUserID carries the caller id. Authentication happens upstream.
	HeaderUserID = "X-User-ID"
	// AnonymousUser owns records created without an identity header.
	AnonymousUser = "demo-user"

	maxUserIDLen = 64
)

// RequestID attaches (or propagates) a correlation identifier per request.
// An incoming X-Request-ID is reused; otherwise a UUIDv4 is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Identity stores the X-User-ID header value under the "userID" context key.
// Absent or oversized values leave the key unset so that throttling falls
// back to the client IP.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" && len(uid) <= maxUserIDLen {
			c.Set(userIDKey, uid)
		}
		c.Next()
	}
}

// UserID returns the caller id recorded by Identity, or AnonymousUser.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return AnonymousUser
}

// Recovery intercepts panics, logs the stack and answers with a JSON 500:
//
//	{ "request_id": "...", "code": "internal_error", "message": "internal server error" }
//
// If the handler already started writing, only the status is set.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid := c.GetString(requestIDKey)
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", rid).
					Msg("panic recovered")

				if c.Writer.Written() {
					c.AbortWithStatus(http.StatusInternalServerError)
					return
				}
				c.Header(requestIDHeader, rid)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"request_id": rid,
					"code":       "internal_error",
					"message":    "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger, or the global logger
// when none was attached. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}
