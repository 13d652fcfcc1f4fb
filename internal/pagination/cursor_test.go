package pagination

import (
	"errors"
	"testing"
	"time"
)

func TestCursor_RoundTripWithID(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 30, 0, 123456000, time.UTC)
	c := New(at, "abc-123")

	got, err := Parse(c.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got == nil || !got.SavedAt.Equal(at) || got.ID != "abc-123" || !got.HasID() {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestParse_BareTimestamp(t *testing.T) {
	got, err := Parse("2024-05-01T10:30:00+02:00")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.HasID() {
		t.Fatalf("bare timestamp must not carry an id: %+v", got)
	}
	want := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	if !got.SavedAt.Equal(want) || got.SavedAt.Location() != time.UTC {
		t.Fatalf("SavedAt = %v; want %v in UTC", got.SavedAt, want)
	}
}

func TestParse_EmptyMeansNoCursor(t *testing.T) {
	for _, in := range []string{"", "   "} {
		got, err := Parse(in)
		if err != nil || got != nil {
			t.Fatalf("Parse(%q) = %v, %v; want nil, nil", in, got, err)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, in := range []string{"yesterday", "2024-13-01T00:00:00Z", "2024-05-01T00:00:00Z~", "~abc", "12345"} {
		if _, err := Parse(in); !errors.Is(err, ErrMalformedCursor) {
			t.Fatalf("Parse(%q) err = %v; want ErrMalformedCursor", in, err)
		}
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, want int }{
		{-5, DefaultLimit},
		{0, DefaultLimit},
		{1, 1},
		{50, 50},
		{100, 100},
		{101, MaxLimit},
		{1 << 20, MaxLimit},
	}
	for _, tc := range cases {
		if got := ClampLimit(tc.in); got != tc.want {
			t.Fatalf("ClampLimit(%d) = %d; want %d", tc.in, got, tc.want)
		}
	}
}

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}
