// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for unsafe routes. The
// validator checks the header, stashes the key, and asks a lookup whether the
// same (user, scope, key) already produced a resource. On a hit it records
// the resource id and marks the request as a replay so that:
//   - handlers can return the original resource (ReplayResourceID),
//   - Throttle lets the replay through without consuming budget.
//
// Persistence stays behind the IdempotencyLookup function type.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses served from a
// previously recorded result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemReplay   = "idem.replay"   // bool
	ctxKeyIdemResource = "idem.resource" // string: id recorded for the key
	ctxKeyRateBypass   = "rate.bypass"   // bool
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the key was already used successfully.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ReplayResourceID returns the resource id recorded for a replayed key.
func ReplayResourceID(c *gin.Context) (string, bool) {
	if !IsReplay(c) {
		return "", false
	}
	s := c.GetString(ctxKeyIdemResource)
	return s, s != ""
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the resource id recorded for (userID, scope, key)
// if it is still valid at now. found=false with a nil error means "no record".
// Lookup errors never block the request; it proceeds as a first attempt.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (resourceID string, found bool, err error)

// IdempotencyValidator validates Idempotency-Key for routes under scope.
//
//   - not a POST, or header absent: no-op.
//   - header invalid: 400 bad_request with the standard envelope.
//   - lookup hit: marks replay and rate bypass, stores the resource id.
func IdempotencyValidator(scope string, opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.GetString(requestIDKey),
				"code":       "bad_request",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			rid, found, err := lookup(c.Request.Context(), UserID(c), scope, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			} else if found {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyIdemResource, rid)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
