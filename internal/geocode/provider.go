// Package geocode resolves free-text addresses to coordinates and coordinates
// back to addresses through an external provider, with a cache in front of it.
//
// Resolution is cache-first and never fails loudly: provider errors, quota
// exhaustion, timeouts and empty result sets all surface to callers as
// "absent". Only successful lookups are cached.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Coordinates is the result of a forward lookup.
type Coordinates struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Display string  `json:"display,omitempty"`
}

// AddressResult is the result of a reverse lookup.
type AddressResult struct {
	Address string `json:"address"`
	Display string `json:"display,omitempty"`
}

// Provider is an external geocoding service. Implementations return an empty
// slice (not an error) when the service answers but finds nothing.
type Provider interface {
	Forward(ctx context.Context, query string) ([]Coordinates, error)
	Reverse(ctx context.Context, lat, lng float64) ([]AddressResult, error)
}

// Provider failure classes. Implementations wrap one of these so callers can
// classify failures with errors.Is.
var (
	ErrRateLimited   = errors.New("geocode: provider rate limited")
	ErrQuotaExceeded = errors.New("geocode: provider quota exceeded")
	ErrTimeout       = errors.New("geocode: provider timeout")
	ErrUpstream      = errors.New("geocode: provider error")
)

// Store is the durable cache behind the in-process layer. A missing entry is
// reported as (nil, false, nil); err is reserved for backend failures.
type Store interface {
	GetForward(ctx context.Context, key string) (*Coordinates, bool, error)
	PutForward(ctx context.Context, key string, c Coordinates) error
	GetReverse(ctx context.Context, key string) (*AddressResult, bool, error)
	PutReverse(ctx context.Context, key string, a AddressResult) error
}

// NormalizeQuery produces the forward cache key: surrounding whitespace is
// trimmed, inner runs collapse to one space, and the text is NFC-normalized
// and lower-cased.
func NormalizeQuery(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	// Casers carry state; one per call keeps this safe for concurrent use.
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

// CoordKey is the reverse cache key for an exact coordinate pair.
func CoordKey(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}

// ValidCoordinates reports whether lat/lng are finite and within WGS84 bounds.
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// outcome maps a provider error to a low-cardinality metric label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	default:
		return "error"
	}
}
