// Package services – LocationService
//
// This file implements LocationService, which owns the lifecycle of saved
// locations: validation and normalization of user input, owner-scoped CRUD,
// hand-off of coordinate-only records to background address enrichment, and
// keyset-paginated history queries with text, category and date filters.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-location-backend/internal/domain"
	"github.com/tbourn/go-location-backend/internal/pagination"
	"github.com/tbourn/go-location-backend/internal/repo"
)

const (
	maxAddressRunes  = 500
	maxCategoryRunes = 64
	maxFloorRunes    = 32
	maxPlaceRefRunes = 128
)

// LocationRepo defines the repository contract required by LocationService.
type LocationRepo interface {
	CreateLocation(ctx context.Context, db *gorm.DB, loc *domain.Location) error
	GetLocation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Location, error)
	UpdateLocation(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any) error
	DeleteLocation(ctx context.Context, db *gorm.DB, id, userID string) error
	ListLocationsPage(ctx context.Context, db *gorm.DB, userID string, n int, cursor *pagination.Cursor, f repo.LocationFilter) ([]domain.Location, error)
}

// Enricher accepts coordinate-only records for background address lookup.
// Implementations must not block.
type Enricher interface {
	Enrich(id string, lat, lng float64)
}

// CreateLocationInput carries a new location. Nil fields are absent.
type CreateLocationInput struct {
	Latitude   *float64
	Longitude  *float64
	Accuracy   *float64
	Address    *string
	Note       *string
	CategoryID *string
	Floor      *string
	PlaceRef   *string
	Active     *bool      // defaults to true
	SavedAt    *time.Time // defaults to now
}

// UpdateLocationInput is a partial owner edit. Nil fields are left unchanged;
// an empty string clears an optional text field. Coordinates can only be
// replaced as a pair.
type UpdateLocationInput struct {
	Latitude   *float64
	Longitude  *float64
	Accuracy   *float64
	Address    *string
	Note       *string
	CategoryID *string
	Floor      *string
	PlaceRef   *string
	Active     *bool
}

// ListFilters narrows ListPage. Zero values apply no constraint.
type ListFilters struct {
	Text       string
	CategoryID string
	From       *time.Time
	To         *time.Time
}

// Page is one slice of a user's history. NextCursor is nil on the last page.
type Page struct {
	Items      []domain.Location
	NextCursor *string
}

// LocationService provides location operations and enforces ownership.
type LocationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the location repository used by this service.
	Repo LocationRepo
	// Enricher back-fills addresses; nil disables enrichment.
	Enricher Enricher
	// Now is the clock used for SavedAt defaults.
	Now func() time.Time
}

// NewLocationService wires a LocationService with the wall clock.
func NewLocationService(db *gorm.DB, r LocationRepo, e Enricher) *LocationService {
	return &LocationService{DB: db, Repo: r, Enricher: e, Now: time.Now}
}

func (s *LocationService) now() time.Time {
	if s.Now == nil {
		return normalizeTime(time.Now())
	}
	return normalizeTime(s.Now())
}

// normalizeTime stores instants in UTC at the precision every supported
// database can round-trip.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func tracer() trace.Tracer { return otel.Tracer("services/LocationService") }

// Create validates in, persists a new location for userID, and, when the
// record has coordinates but no address, hands it to the Enricher. It returns
// as soon as the row is stored; the address appears later, if at all.
func (s *LocationService) Create(ctx context.Context, userID string, in CreateLocationInput) (*domain.Location, error) {
	ctx, span := tracer().Start(ctx, "Create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if err := checkPair(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}
	if err := checkAccuracy(in.Accuracy); err != nil {
		return nil, err
	}
	address, err := cleanAddress(in.Address)
	if err != nil {
		return nil, err
	}
	note, err := cleanText(in.Note, domain.MaxNoteLen, ErrNoteTooLong)
	if err != nil {
		return nil, err
	}
	category, err := cleanText(in.CategoryID, maxCategoryRunes, ErrFieldTooLong)
	if err != nil {
		return nil, err
	}
	floor, err := cleanText(in.Floor, maxFloorRunes, ErrFieldTooLong)
	if err != nil {
		return nil, err
	}
	placeRef, err := cleanText(in.PlaceRef, maxPlaceRefRunes, ErrFieldTooLong)
	if err != nil {
		return nil, err
	}

	loc := &domain.Location{
		UserID:     userID,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Accuracy:   in.Accuracy,
		Address:    address,
		Note:       note,
		CategoryID: category,
		Floor:      floor,
		PlaceRef:   placeRef,
		Active:     true,
	}
	if !loc.HasCoordinates() && !loc.HasAddress() {
		return nil, ErrPlaceRequired
	}
	if in.Active != nil {
		loc.Active = *in.Active
	}
	now := s.now()
	loc.SavedAt, loc.CreatedAt, loc.UpdatedAt = now, now, now
	if in.SavedAt != nil && !in.SavedAt.IsZero() {
		loc.SavedAt = normalizeTime(*in.SavedAt)
	}

	if err := s.Repo.CreateLocation(ctx, s.DB, loc); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("location.id", loc.ID))

	s.maybeEnrich(loc)
	return loc, nil
}

// Get returns a location owned by userID.
func (s *LocationService) Get(ctx context.Context, userID, id string) (*domain.Location, error) {
	ctx, span := tracer().Start(ctx, "Get", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("location.id", id),
	))
	defer span.End()

	loc, err := s.Repo.GetLocation(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	return loc, nil
}

// Update applies a partial owner edit. The merged record must still carry
// coordinates or an address. When the coordinates change and the merged
// record has no address, enrichment is dispatched again.
func (s *LocationService) Update(ctx context.Context, userID, id string, in UpdateLocationInput) (*domain.Location, error) {
	ctx, span := tracer().Start(ctx, "Update", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("location.id", id),
	))
	defer span.End()

	cur, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	merged := *cur

	if in.Latitude != nil || in.Longitude != nil {
		if err := checkPair(in.Latitude, in.Longitude); err != nil {
			return nil, err
		}
		fields["latitude"], fields["longitude"] = *in.Latitude, *in.Longitude
		merged.Latitude, merged.Longitude = in.Latitude, in.Longitude
	}
	if in.Accuracy != nil {
		if err := checkAccuracy(in.Accuracy); err != nil {
			return nil, err
		}
		fields["accuracy"] = *in.Accuracy
		merged.Accuracy = in.Accuracy
	}
	if in.Address != nil {
		address, err := cleanAddress(in.Address)
		if err != nil {
			return nil, err
		}
		fields["address"] = address
		merged.Address = address
	}

	for _, tf := range []struct {
		in     *string
		max    int
		tooBig error
		column string
		dst    **string
	}{
		{in.Note, domain.MaxNoteLen, ErrNoteTooLong, "note", &merged.Note},
		{in.CategoryID, maxCategoryRunes, ErrFieldTooLong, "category_id", &merged.CategoryID},
		{in.Floor, maxFloorRunes, ErrFieldTooLong, "floor", &merged.Floor},
		{in.PlaceRef, maxPlaceRefRunes, ErrFieldTooLong, "place_ref", &merged.PlaceRef},
	} {
		if tf.in == nil {
			continue
		}
		v, err := cleanText(tf.in, tf.max, tf.tooBig)
		if err != nil {
			return nil, err
		}
		fields[tf.column] = v
		*tf.dst = v
	}
	if in.Active != nil {
		fields["active"] = *in.Active
		merged.Active = *in.Active
	}

	if !merged.HasCoordinates() && !merged.HasAddress() {
		return nil, ErrPlaceRequired
	}

	if err := s.Repo.UpdateLocation(ctx, s.DB, id, userID, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLocationNotFound
		}
		span.RecordError(err)
		return nil, err
	}

	coordsChanged := in.Latitude != nil && !sameCoords(cur, &merged)
	if coordsChanged {
		s.maybeEnrich(&merged)
	}
	return s.Get(ctx, userID, id)
}

// Delete removes a location owned by userID.
func (s *LocationService) Delete(ctx context.Context, userID, id string) error {
	ctx, span := tracer().Start(ctx, "Delete", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("location.id", id),
	))
	defer span.End()

	if err := s.Repo.DeleteLocation(ctx, s.DB, id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLocationNotFound
		}
		return err
	}
	return nil
}

// ListPage returns one page of userID's history, newest first.
//
// limit is clamped to [1, 100] (0 selects 20). cursor is the NextCursor of a
// previous page, or a bare RFC 3339 timestamp meaning "strictly older than".
// Walking NextCursor until it is nil visits every matching record exactly
// once, provided no records are inserted or removed meanwhile.
func (s *LocationService) ListPage(ctx context.Context, userID string, limit int, cursor string, f ListFilters) (Page, error) {
	limit = pagination.ClampLimit(limit)

	ctx, span := tracer().Start(ctx, "ListPage", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("page.limit", limit),
		attribute.Bool("page.has_cursor", strings.TrimSpace(cursor) != ""),
	))
	defer span.End()

	cur, err := pagination.Parse(cursor)
	if err != nil {
		return Page{}, ErrInvalidCursor
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return Page{}, ErrInvalidDateFilter
	}

	rows, err := s.Repo.ListLocationsPage(ctx, s.DB, userID, limit+1, cur, repo.LocationFilter{
		Text:       strings.TrimSpace(f.Text),
		CategoryID: strings.TrimSpace(f.CategoryID),
		From:       f.From,
		To:         f.To,
	})
	if err != nil {
		span.RecordError(err)
		return Page{}, err
	}

	page := Page{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		last := page.Items[limit-1]
		next := pagination.New(last.SavedAt, last.ID).String()
		page.NextCursor = &next
	}
	if page.Items == nil {
		page.Items = []domain.Location{}
	}
	span.SetAttributes(attribute.Int("page.items", len(page.Items)))
	return page, nil
}

func (s *LocationService) maybeEnrich(loc *domain.Location) {
	if s.Enricher == nil || !loc.HasCoordinates() || loc.HasAddress() {
		return
	}
	s.Enricher.Enrich(loc.ID, *loc.Latitude, *loc.Longitude)
}

func sameCoords(a, b *domain.Location) bool {
	if !a.HasCoordinates() || !b.HasCoordinates() {
		return a.HasCoordinates() == b.HasCoordinates()
	}
	return *a.Latitude == *b.Latitude && *a.Longitude == *b.Longitude
}

func checkPair(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return ErrIncompletePair
	}
	if lat == nil {
		return nil
	}
	if math.IsNaN(*lat) || *lat < domain.MinLatitude || *lat > domain.MaxLatitude {
		return ErrInvalidLatitude
	}
	if math.IsNaN(*lng) || *lng < domain.MinLongitude || *lng > domain.MaxLongitude {
		return ErrInvalidLongitude
	}
	return nil
}

func checkAccuracy(acc *float64) error {
	if acc != nil && (math.IsNaN(*acc) || math.IsInf(*acc, 0) || *acc < 0) {
		return ErrInvalidAccuracy
	}
	return nil
}

// cleanAddress trims the address; blank means "no address".
func cleanAddress(in *string) (*string, error) {
	if in == nil {
		return nil, nil
	}
	a := strings.TrimSpace(*in)
	if a == "" {
		return nil, nil
	}
	n := utf8.RuneCountInString(a)
	if n < domain.MinAddressLen {
		return nil, ErrAddressTooShort
	}
	if n > maxAddressRunes {
		return nil, ErrAddressTooLong
	}
	return &a, nil
}

// cleanText trims an optional text field; blank means absent.
func cleanText(in *string, max int, tooLong error) (*string, error) {
	if in == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*in)
	if v == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(v) > max {
		return nil, tooLong
	}
	return &v, nil
}
