// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adapts the fixed-window ratelimit.Limiter to Gin. Every response
// that passes through Throttle carries the current budget:
//
//	X-RateLimit-Limit:     Max for the policy
//	X-RateLimit-Remaining: requests left in the window
//	X-RateLimit-Reset:     window end, unix seconds
//
// A rejected request gets 429 with Retry-After (whole seconds, rounded up)
// and the standard error envelope. Idempotent replays marked by
// IdempotencyValidator skip the check and consume no budget.
//
// The limiter is process-local; see package ratelimit.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-location-backend/internal/ratelimit"
)

const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
)

// KeyFunc selects the identity used to key a throttle counter.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys by "user:<id>" when Identity recorded a caller id and by
// "ip:<addr>" otherwise. The prefixes keep the two namespaces apart.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get(userIDKey); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that should not be throttled.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Throttle enforces policy p per identity. name namespaces the counters, so
// several policies can share one Limiter without interfering.
func Throttle(l *ratelimit.Limiter, name string, p ratelimit.Policy, keyFn KeyFunc) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			throttleDecisions.WithLabelValues(name, "bypassed").Inc()
			c.Next()
			return
		}

		d := l.Check(name+"|"+keyFn(c), p)

		h := c.Writer.Header()
		h.Set(HeaderRateLimit, strconv.Itoa(d.Limit))
		h.Set(HeaderRateRemaining, strconv.Itoa(d.Remaining))
		h.Set(HeaderRateReset, strconv.FormatInt(ceilUnix(d.ResetAt), 10))

		if d.Allowed {
			throttleDecisions.WithLabelValues(name, "allowed").Inc()
			c.Next()
			return
		}

		throttleDecisions.WithLabelValues(name, "rejected").Inc()
		h.Set("Retry-After", strconv.Itoa(ceilSeconds(d.RetryAfter)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.GetString(requestIDKey),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

// ceilSeconds rounds d up to whole seconds, never below 1.
func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func ceilUnix(t time.Time) int64 {
	if t.Nanosecond() > 0 {
		return t.Unix() + 1
	}
	return t.Unix()
}
