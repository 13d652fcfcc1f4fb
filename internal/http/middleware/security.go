// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, a hardening middleware for the JSON API.
// Saved locations are private to their owner, so responses default to
// "Cache-Control: private, no-cache": browsers may keep them but must
// revalidate (the list endpoint answers with an ETag), and shared caches
// must not store them.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// HSTSMaxAge enables Strict-Transport-Security on HTTPS requests when > 0.
	HSTSMaxAge time.Duration
	// CacheControl overrides the default "private, no-cache".
	CacheControl string
}

// SecurityHeaders adds baseline headers to every response:
//
//	X-Content-Type-Options: nosniff
//	X-Frame-Options: DENY
//	Referrer-Policy: no-referrer
//	Cache-Control: private, no-cache
//
// plus Strict-Transport-Security for HTTPS requests when HSTSMaxAge > 0, and
// exposes X-Request-ID and the X-RateLimit-* headers to browser clients.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	cacheControl := opt.CacheControl
	if cacheControl == "" {
		cacheControl = "private, no-cache"
	}
	hsts := ""
	if secs := int64(opt.HSTSMaxAge / time.Second); secs > 0 {
		hsts = "max-age=" + strconv.FormatInt(secs, 10) + "; includeSubDomains"
	}
	exposed := []string{requestIDHeader, HeaderRateLimit, HeaderRateRemaining, HeaderRateReset, "Retry-After", "ETag", HeaderIdempotencyReplayed}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", cacheControl)

		if hsts != "" && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		const hdr = "Access-Control-Expose-Headers"
		cur := h.Get(hdr)
		for _, name := range exposed {
			if !strings.Contains(cur, name) {
				if cur == "" {
					cur = name
				} else {
					cur += ", " + name
				}
			}
		}
		h.Set(hdr, cur)

		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS directly or through a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
