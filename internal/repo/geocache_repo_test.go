package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-location-backend/internal/domain"
	"github.com/tbourn/go-location-backend/internal/geocode"
)

func TestGeocodeStore_ForwardMissPutHit(t *testing.T) {
	db := newTestDB(t, &domain.ForwardGeocode{}, &domain.ReverseGeocode{})
	s := NewGeocodeStore(db, 0)
	ctx := context.Background()

	if c, ok, err := s.GetForward(ctx, "main st 1"); c != nil || ok || err != nil {
		t.Fatalf("expected clean miss, got %v %v %v", c, ok, err)
	}
	if err := s.PutForward(ctx, "main st 1", geocode.Coordinates{Lat: 52.1, Lng: 4.3, Display: "Main St 1"}); err != nil {
		t.Fatalf("PutForward: %v", err)
	}
	c, ok, err := s.GetForward(ctx, "main st 1")
	if err != nil || !ok || c.Lat != 52.1 || c.Lng != 4.3 || c.Display != "Main St 1" {
		t.Fatalf("GetForward: %+v %v %v", c, ok, err)
	}

	// Second put for the same key replaces rather than failing.
	if err := s.PutForward(ctx, "main st 1", geocode.Coordinates{Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("PutForward upsert: %v", err)
	}
	var n int64
	db.Model(&domain.ForwardGeocode{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected one row per key, got %d", n)
	}
}

func TestGeocodeStore_ReverseMissPutHit(t *testing.T) {
	db := newTestDB(t, &domain.ForwardGeocode{}, &domain.ReverseGeocode{})
	s := NewGeocodeStore(db, 0)
	ctx := context.Background()
	key := geocode.CoordKey(52.1, 4.3)

	if _, ok, err := s.GetReverse(ctx, key); ok || err != nil {
		t.Fatalf("expected clean miss, got %v %v", ok, err)
	}
	if err := s.PutReverse(ctx, key, geocode.AddressResult{Address: "Main St 1", Display: "Home"}); err != nil {
		t.Fatalf("PutReverse: %v", err)
	}
	a, ok, err := s.GetReverse(ctx, key)
	if err != nil || !ok || a.Address != "Main St 1" || a.Display != "Home" {
		t.Fatalf("GetReverse: %+v %v %v", a, ok, err)
	}
}

func TestGeocodeStore_TTL_ExpiredReadsAsMissAndIsReplaced(t *testing.T) {
	db := newTestDB(t, &domain.ForwardGeocode{}, &domain.ReverseGeocode{})
	s := NewGeocodeStore(db, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if err := s.PutReverse(ctx, "k", geocode.AddressResult{Address: "Old"}); err != nil {
		t.Fatalf("PutReverse: %v", err)
	}
	if _, ok, _ := s.GetReverse(ctx, "k"); !ok {
		t.Fatalf("fresh entry should hit")
	}

	now = now.Add(2 * time.Hour)
	if _, ok, err := s.GetReverse(ctx, "k"); ok || err != nil {
		t.Fatalf("expired entry must read as miss: ok=%v err=%v", ok, err)
	}
	if err := s.PutReverse(ctx, "k", geocode.AddressResult{Address: "New"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if a, ok, _ := s.GetReverse(ctx, "k"); !ok || a.Address != "New" {
		t.Fatalf("expected replaced entry, got %+v %v", a, ok)
	}
}

func TestGeocodeStore_ReadErrorSurfaces(t *testing.T) {
	db := newTestDB(t /* no tables */)
	s := NewGeocodeStore(db, 0)
	if _, _, err := s.GetForward(context.Background(), "x"); err == nil {
		t.Fatalf("expected error from missing table")
	}
}

func TestPurgeExpiredGeocodes(t *testing.T) {
	db := newTestDB(t, &domain.ForwardGeocode{}, &domain.ReverseGeocode{})
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	seed := []any{
		&domain.ForwardGeocode{QueryKey: "expired", Lat: 1, Lng: 1, CreatedAt: past, ExpiresAt: &past},
		&domain.ForwardGeocode{QueryKey: "fresh", Lat: 1, Lng: 1, CreatedAt: past, ExpiresAt: &future},
		&domain.ForwardGeocode{QueryKey: "forever", Lat: 1, Lng: 1, CreatedAt: past},
		&domain.ReverseGeocode{CoordKey: "1,1", Address: "x", CreatedAt: past, ExpiresAt: &past},
	}
	for _, r := range seed {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, err := PurgeExpiredGeocodes(ctx, db, now)
	if err != nil {
		t.Fatalf("PurgeExpiredGeocodes: %v", err)
	}
	if n != 2 {
		t.Fatalf("purged %d; want 2", n)
	}
}
