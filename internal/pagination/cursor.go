// Package pagination holds the keyset cursor format and the page-size rules
// shared by the query layer and the HTTP handlers.
package pagination

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultLimit is used when the caller does not ask for a page size.
	DefaultLimit = 20
	// MaxLimit is the largest page a single request may return.
	MaxLimit = 100

	sep = "~"
)

// ErrMalformedCursor is returned when a cursor token cannot be parsed.
var ErrMalformedCursor = errors.New("malformed cursor")

// Cursor marks the position after the last row of a page.
//
// Rows are ordered by (SavedAt DESC, ID DESC). A cursor with an ID selects
// rows strictly after (SavedAt, ID) in that order. A cursor without an ID
// (a bare timestamp) selects rows with saved_at strictly before SavedAt.
type Cursor struct {
	SavedAt time.Time
	ID      string
}

// HasID reports whether the cursor carries the id tie-breaker.
func (c Cursor) HasID() bool { return c.ID != "" }

// String encodes the cursor as "<RFC3339Nano>~<id>" (or just the timestamp
// when no id is set).
func (c Cursor) String() string {
	ts := c.SavedAt.UTC().Format(time.RFC3339Nano)
	if c.ID == "" {
		return ts
	}
	return ts + sep + c.ID
}

// New builds the cursor for the row at (savedAt, id).
func New(savedAt time.Time, id string) Cursor {
	return Cursor{SavedAt: savedAt.UTC(), ID: id}
}

// Parse decodes a cursor token. Empty input yields (nil, nil): no cursor.
// Accepted forms are an RFC 3339 timestamp optionally followed by "~<id>".
func Parse(raw string) (*Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	ts, id, hasID := strings.Cut(raw, sep)
	if hasID && strings.TrimSpace(id) == "" {
		return nil, ErrMalformedCursor
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrMalformedCursor
	}
	return &Cursor{SavedAt: t.UTC(), ID: strings.TrimSpace(id)}, nil
}

// ClampLimit maps a requested page size onto [1, MaxLimit].
// Non-positive values select DefaultLimit.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := pagination.AtoiDefault("42", 0) // returns 42
//	n = pagination.AtoiDefault("", 10)   // returns 10
//	n = pagination.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
