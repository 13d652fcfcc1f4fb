package domain

import "time"

// ForwardGeocode memoizes a successful address → coordinates lookup.
// QueryKey is the normalized (trimmed, NFC, lower-cased) query text.
// ExpiresAt is nil when the cache is configured without expiry.
type ForwardGeocode struct {
	QueryKey  string     `gorm:"type:varchar(500);primaryKey"`
	Lat       float64    `gorm:"type:double precision;not null"`
	Lng       float64    `gorm:"type:double precision;not null"`
	Display   string     `gorm:"type:text;not null;default:''"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"`
	ExpiresAt *time.Time `gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (ForwardGeocode) TableName() string { return "geocode_forward_cache" }

// ReverseGeocode memoizes a successful coordinates → address lookup.
// CoordKey is the exact coordinate pair formatted as "%.6f,%.6f".
type ReverseGeocode struct {
	CoordKey  string     `gorm:"type:varchar(64);primaryKey"`
	Address   string     `gorm:"type:text;not null"`
	Display   string     `gorm:"type:text;not null;default:''"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"`
	ExpiresAt *time.Time `gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (ReverseGeocode) TableName() string { return "geocode_reverse_cache" }
