package geocode

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestNormalizeQuery(t *testing.T) {
	cases := map[string]string{
		"  Main   St 1 ":      "main st 1",
		"MAIN\tST\n1":         "main st 1",
		"Cafe\u0301   Straße":  "caf\u00e9 straße", // NFC composes e + combining acute
		"":                    "",
		"   ":                 "",
		"Ünïcödé   Boulevard": "ünïcödé boulevard",
	}
	for in, want := range cases {
		if got := NormalizeQuery(in); got != want {
			t.Fatalf("NormalizeQuery(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestCoordKey_FixedPrecision(t *testing.T) {
	if got := CoordKey(52.3702157, 4.8951679); got != "52.370216,4.895168" {
		t.Fatalf("CoordKey = %q", got)
	}
	if CoordKey(1, 2) != CoordKey(1.0000001, 2.0000001) {
		t.Fatalf("pairs equal at 6 decimals must share a key")
	}
}

func TestValidCoordinates(t *testing.T) {
	cases := []struct {
		lat, lng float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.0001, 0, false},
		{0, -180.5, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
	}
	for _, tc := range cases {
		if got := ValidCoordinates(tc.lat, tc.lng); got != tc.want {
			t.Fatalf("ValidCoordinates(%v,%v) = %v; want %v", tc.lat, tc.lng, got, tc.want)
		}
	}
}

func TestOutcomeLabels(t *testing.T) {
	cases := map[error]string{
		nil:                                    "ok",
		fmt.Errorf("x: %w", ErrTimeout):        "timeout",
		fmt.Errorf("x: %w", ErrRateLimited):    "rate_limited",
		fmt.Errorf("x: %w", ErrQuotaExceeded):  "quota",
		fmt.Errorf("x: %w", ErrUpstream):       "error",
		errors.New("something else entirely"): "error",
	}
	for err, want := range cases {
		if got := outcome(err); got != want {
			t.Fatalf("outcome(%v) = %q; want %q", err, got, want)
		}
	}
}
