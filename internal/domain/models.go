// Package domain defines the persistence models for saved locations and the
// geocoding cache. These types are mapped with GORM and form the core data
// layer of the location history backend.
package domain

import (
	"time"
)

// Location bounds shared by validation and the geocoding layer.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0

	// MinAddressLen is the shortest address (in runes, after trimming) that
	// is accepted on a record or sent to the geocoding provider.
	MinAddressLen = 3
	// MaxNoteLen caps the free-text note in runes.
	MaxNoteLen = 500
)

// Location is a place saved by a user to their history.
//
// A record carries a coordinate pair, an address, or both. Records created
// with coordinates only get their address back-filled asynchronously by the
// enrichment pipeline; that write only lands while Address is still empty.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: owner identifier; leads the keyset index.
//   - Latitude / Longitude: optional pair, both set or both nil.
//   - Accuracy: optional accuracy radius in meters.
//   - Address / Note / CategoryID / Floor / PlaceRef: optional descriptors.
//   - Active: soft visibility flag controlled by the owner.
//   - SearchText: address and note, case-folded in Go for text filters.
//   - SavedAt: ordering and pagination key (UTC, microsecond precision).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//
// Records are hard-deleted.
type Location struct {
	ID         string    `json:"id"                    gorm:"type:char(36);primaryKey;index:idx_user_saved,priority:3,sort:desc"`
	UserID     string    `json:"user_id"               gorm:"type:varchar(64);not null;index:idx_user_saved,priority:1"`
	Latitude   *float64  `json:"latitude,omitempty"    gorm:"type:double precision"`
	Longitude  *float64  `json:"longitude,omitempty"   gorm:"type:double precision"`
	Accuracy   *float64  `json:"accuracy,omitempty"    gorm:"type:double precision"`
	Address    *string   `json:"address,omitempty"     gorm:"type:varchar(500)"`
	Note       *string   `json:"note,omitempty"        gorm:"type:text"`
	CategoryID *string   `json:"category_id,omitempty" gorm:"type:varchar(64);index"`
	Floor      *string   `json:"floor,omitempty"       gorm:"type:varchar(32)"`
	PlaceRef   *string   `json:"place_ref,omitempty"   gorm:"type:varchar(128)"`
	Active     bool      `json:"active"                gorm:"not null;default:true"`
	SearchText string    `json:"-"                     gorm:"type:text;not null;default:''"`
	SavedAt    time.Time `json:"saved_at"              gorm:"not null;index:idx_user_saved,priority:2,sort:desc"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Location.
func (Location) TableName() string { return "locations" }

// HasCoordinates reports whether both halves of the coordinate pair are set.
func (l *Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// HasAddress reports whether a non-blank address is stored.
func (l *Location) HasAddress() bool {
	return l.Address != nil && *l.Address != ""
}
