// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the SQL-backed geocode cache.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-location-backend/internal/domain"
	"github.com/tbourn/go-location-backend/internal/geocode"
)

// GeocodeStore persists successful geocoding lookups in the
// geocode_forward_cache and geocode_reverse_cache tables.
// It implements geocode.Store.
type GeocodeStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewGeocodeStore returns a store whose entries expire after ttl
// (ttl <= 0: never).
func NewGeocodeStore(db *gorm.DB, ttl time.Duration) *GeocodeStore {
	return &GeocodeStore{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

var _ geocode.Store = (*GeocodeStore)(nil)

func (s *GeocodeStore) expiry() *time.Time {
	if s.ttl <= 0 {
		return nil
	}
	t := s.now().Add(s.ttl)
	return &t
}

// GetForward implements geocode.Store.
func (s *GeocodeStore) GetForward(ctx context.Context, key string) (*geocode.Coordinates, bool, error) {
	var row domain.ForwardGeocode
	err := s.db.WithContext(ctx).
		Where("query_key = ? AND (expires_at IS NULL OR expires_at > ?)", key, s.now()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &geocode.Coordinates{Lat: row.Lat, Lng: row.Lng, Display: row.Display}, true, nil
}

// PutForward implements geocode.Store. An existing row for key (expired or
// not) is replaced.
func (s *GeocodeStore) PutForward(ctx context.Context, key string, c geocode.Coordinates) error {
	row := domain.ForwardGeocode{
		QueryKey:  key,
		Lat:       c.Lat,
		Lng:       c.Lng,
		Display:   c.Display,
		CreatedAt: s.now(),
		ExpiresAt: s.expiry(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "query_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"lat", "lng", "display", "created_at", "expires_at"}),
	}).Create(&row).Error
}

// GetReverse implements geocode.Store.
func (s *GeocodeStore) GetReverse(ctx context.Context, key string) (*geocode.AddressResult, bool, error) {
	var row domain.ReverseGeocode
	err := s.db.WithContext(ctx).
		Where("coord_key = ? AND (expires_at IS NULL OR expires_at > ?)", key, s.now()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &geocode.AddressResult{Address: row.Address, Display: row.Display}, true, nil
}

// PutReverse implements geocode.Store.
func (s *GeocodeStore) PutReverse(ctx context.Context, key string, a geocode.AddressResult) error {
	row := domain.ReverseGeocode{
		CoordKey:  key,
		Address:   a.Address,
		Display:   a.Display,
		CreatedAt: s.now(),
		ExpiresAt: s.expiry(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "coord_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "display", "created_at", "expires_at"}),
	}).Create(&row).Error
}

// PurgeExpiredGeocodes deletes cache rows whose expiry has passed and returns
// how many were removed.
func PurgeExpiredGeocodes(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	var total int64
	for _, m := range []any{&domain.ForwardGeocode{}, &domain.ReverseGeocode{}} {
		res := db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(m)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}
