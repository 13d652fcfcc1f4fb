// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Location
// model, including the keyset-paginated query used by history listings.
//
// Error semantics:
//   - When a location is not found (or is not owned by the caller), functions
//     return gorm.ErrRecordNotFound (exported here as ErrNotFound).
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-location-backend/internal/domain"
	"github.com/tbourn/go-location-backend/internal/geocode"
	"github.com/tbourn/go-location-backend/internal/pagination"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// LocationFilter narrows a listing. Zero values mean "no constraint".
type LocationFilter struct {
	Text       string     // case-insensitive substring of address or note (Unicode-aware)
	CategoryID string     // exact match
	From       *time.Time // saved_at >= From
	To         *time.Time // saved_at <= To
}

// CreateLocation inserts loc, assigning a UUID when ID is empty.
// All columns are written explicitly so Active=false is not replaced by the
// column default.
func CreateLocation(ctx context.Context, db *gorm.DB, loc *domain.Location) error {
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	loc.SearchText = searchText(loc.Address, loc.Note)
	return db.WithContext(ctx).Select("*").Create(loc).Error
}

// searchText folds address and note the same way text filters are folded,
// so matching does not depend on the database's LOWER().
func searchText(address, note *string) string {
	var a, n string
	if address != nil {
		a = geocode.NormalizeQuery(*address)
	}
	if note != nil {
		n = geocode.NormalizeQuery(*note)
	}
	if n == "" {
		return a
	}
	// Newline never survives query folding, so matches cannot span fields.
	return a + "\n" + n
}

// refreshSearchText recomputes search_text for id from the stored row.
func refreshSearchText(tx *gorm.DB, id string) error {
	var row domain.Location
	if err := tx.Select("id", "address", "note").Where("id = ?", id).First(&row).Error; err != nil {
		return err
	}
	return tx.Model(&domain.Location{}).
		Where("id = ?", id).
		UpdateColumn("search_text", searchText(row.Address, row.Note)).Error
}

// backfillSearchText fills search_text on rows written before the column
// existed.
func backfillSearchText(db *gorm.DB) error {
	var rows []domain.Location
	return db.Select("id", "address", "note").
		Where("search_text = '' AND (COALESCE(address, '') <> '' OR COALESCE(note, '') <> '')").
		FindInBatches(&rows, 500, func(tx *gorm.DB, _ int) error {
			for _, r := range rows {
				if err := db.Model(&domain.Location{}).
					Where("id = ?", r.ID).
					UpdateColumn("search_text", searchText(r.Address, r.Note)).Error; err != nil {
					return err
				}
			}
			return nil
		}).Error
}

// GetLocation fetches a location by ID and owner.
func GetLocation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Location, error) {
	var l domain.Location
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpdateLocation applies column updates to a location owned by userID.
// Keys of fields are column names; nil values clear nullable columns.
// Returns ErrNotFound when no row matched.
func UpdateLocation(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any) error {
	if len(fields) == 0 {
		_, err := GetLocation(ctx, db, id, userID)
		return err
	}
	_, textChanged := fields["address"]
	if _, ok := fields["note"]; ok {
		textChanged = true
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Location{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if textChanged {
			return refreshSearchText(tx, id)
		}
		return nil
	})
}

// DeleteLocation hard-deletes a location owned by userID.
func DeleteLocation(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Location{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAddressIfEmpty writes address onto the location only while the row still
// exists, still has no address, and still carries exactly (lat, lng).
// It reports whether the row was changed.
func SetAddressIfEmpty(ctx context.Context, db *gorm.DB, id string, lat, lng float64, address string) (bool, error) {
	applied := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Location{}).
			Where("id = ?", id).
			Where("(address IS NULL OR address = '')").
			Where("latitude = ? AND longitude = ?", lat, lng).
			Updates(map[string]any{
				"address":    address,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		applied = true
		return refreshSearchText(tx, id)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// AddressUpdater binds SetAddressIfEmpty to a database handle for the
// enrichment pipeline.
type AddressUpdater struct{ DB *gorm.DB }

// SetAddressIfEmpty proxies the package-level SetAddressIfEmpty.
func (u AddressUpdater) SetAddressIfEmpty(ctx context.Context, id string, lat, lng float64, address string) (bool, error) {
	return SetAddressIfEmpty(ctx, u.DB, id, lat, lng, address)
}

// ListLocationsPage returns up to n locations for userID ordered
// (saved_at DESC, id DESC), starting strictly after cursor when one is given.
// Callers ask for one row more than the page size to detect a further page.
func ListLocationsPage(ctx context.Context, db *gorm.DB, userID string, n int, cursor *pagination.Cursor, f LocationFilter) ([]domain.Location, error) {
	q := db.WithContext(ctx).
		Model(&domain.Location{}).
		Where("user_id = ?", userID)

	if cursor != nil {
		if cursor.HasID() {
			q = q.Where("(saved_at < ? OR (saved_at = ? AND id < ?))", cursor.SavedAt, cursor.SavedAt, cursor.ID)
		} else {
			q = q.Where("saved_at < ?", cursor.SavedAt)
		}
	}
	if text := geocode.NormalizeQuery(f.Text); text != "" {
		q = q.Where(`search_text LIKE ? ESCAPE '\'`, "%"+escapeLike(text)+"%")
	}
	if f.CategoryID != "" {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.From != nil {
		q = q.Where("saved_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("saved_at <= ?", f.To.UTC())
	}

	var out []domain.Location
	err := q.Order("saved_at DESC, id DESC").Limit(n).Find(&out).Error
	return out, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE wildcards in user text match literally.
func escapeLike(s string) string { return likeEscaper.Replace(s) }
