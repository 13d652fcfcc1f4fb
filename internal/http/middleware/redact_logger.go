// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger for the API. A
// location history is personal data, so the logger never writes bodies and
// scrubs what it does write:
//
//   - query parameters that carry a place (lat, lng, q, address) are masked
//     by name, whatever their value looks like;
//   - remaining query values and header values have emails, phone numbers
//     and UUIDs replaced;
//   - Authorization, Cookie, Set-Cookie, X-User-ID and configured headers
//     are masked entirely.
//
// It also attaches a request-scoped zerolog.Logger (request_id, method, route)
// for handlers to retrieve through LoggerFrom.
package middleware

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const redacted = "[REDACTED]"

// RedactOptions configures additional scrub behavior for RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are extra header names (case-insensitive) to mask fully.
	MaskHeaders []string
	// MaskParams are extra query parameter names (case-insensitive) to mask.
	MaskParams []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex runs inside UUIDs never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redactValue scrubs identifiers from free text. UUIDs go first so the phone
// pattern cannot eat their digit groups.
func redactValue(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// redactQuery masks sensitive parameters by name and scrubs the rest. The
// output is re-encoded with sorted keys. Unparseable queries are scrubbed as
// plain text.
func redactQuery(raw string, maskParams map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redactValue(raw)
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		_, mask := maskParams[strings.ToLower(k)]
		for _, v := range vals[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			if mask {
				b.WriteString(redacted)
			} else {
				b.WriteString(redactValue(v))
			}
		}
	}
	return b.String()
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				set[s] = struct{}{}
			}
		}
	}
	return set
}

// RedactingLogger returns a Gin middleware that logs one line per request at
// INFO, WARN for 4xx, or ERROR for 5xx and requests with gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie", "x-user-id"}, opts.MaskHeaders)
	maskParams := lowerSet([]string{"lat", "lng", "q", "address"}, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		reqID := c.GetString(requestIDKey)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		scoped := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		c.Set(loggerKey, &scoped)

		safeQuery := redactQuery(c.Request.URL.RawQuery, maskParams)
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = redacted
				continue
			}
			safeHeaders[k] = redactValue(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		ev := scoped.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = scoped.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = scoped.Warn()
		}
		ev.
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
