// Location HTTP handlers.
//
// This file exposes REST endpoints for a user's saved locations:
//   - POST   /locations       (create; Idempotency-Key aware)
//   - GET    /locations       (keyset-paginated history, filters, weak ETag)
//   - GET    /locations/{id}  (fetch one)
//   - PATCH  /locations/{id}  (partial owner edit)
//   - DELETE /locations/{id}  (hard delete)
//
// Handlers are transport-thin: they decode and validate transport-level
// input, call LocationService, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-location-backend/internal/domain"
	"github.com/tbourn/go-location-backend/internal/geocode"
	"github.com/tbourn/go-location-backend/internal/http/middleware"
	"github.com/tbourn/go-location-backend/internal/pagination"
	"github.com/tbourn/go-location-backend/internal/repo"
	"github.com/tbourn/go-location-backend/internal/services"
)

// IdempotencyScope namespaces Idempotency-Key records for location creates.
const IdempotencyScope = "locations"

//
// Service contracts (context-aware)
//

// LocationService defines the location operations consumed by HTTP handlers.
type LocationService interface {
	Create(ctx context.Context, userID string, in services.CreateLocationInput) (*domain.Location, error)
	Get(ctx context.Context, userID, id string) (*domain.Location, error)
	Update(ctx context.Context, userID, id string, in services.UpdateLocationInput) (*domain.Location, error)
	Delete(ctx context.Context, userID, id string) error
	ListPage(ctx context.Context, userID string, limit int, cursor string, f services.ListFilters) (services.Page, error)
}

// GeocodeService defines address resolution consumed by HTTP handlers.
type GeocodeService interface {
	Forward(ctx context.Context, q string) (*geocode.Coordinates, error)
	Reverse(ctx context.Context, lat, lng float64) (*geocode.AddressResult, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on service interfaces; the
// concrete *services.LocationService additionally exposes its DB for ETag
// stats and idempotency records.
type Handlers struct {
	locSvc LocationService
	geoSvc GeocodeService

	// IdempotencyTTL is how long a create can be replayed by key.
	IdempotencyTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(locSvc LocationService, geoSvc GeocodeService) *Handlers {
	return &Handlers{locSvc: locSvc, geoSvc: geoSvc, IdempotencyTTL: 24 * time.Hour}
}

func (h *Handlers) db() *gorm.DB {
	if svc, ok := h.locSvc.(*services.LocationService); ok {
		return svc.DB
	}
	return nil
}

//
// DTOs
//

// CreateLocationRequest is the JSON payload for saving a location. Either the
// coordinate pair or an address is required.
type CreateLocationRequest struct {
	Latitude   *float64   `json:"latitude"    example:"52.3731"`
	Longitude  *float64   `json:"longitude"   example:"4.8922"`
	Accuracy   *float64   `json:"accuracy"    example:"12.5"`
	Address    *string    `json:"address"     example:"Dam 1, Amsterdam"`
	Note       *string    `json:"note"        example:"Meet here"`
	CategoryID *string    `json:"category_id" example:"food"`
	Floor      *string    `json:"floor"       example:"2"`
	PlaceRef   *string    `json:"place_ref"   example:"osm:node/123"`
	Active     *bool      `json:"active"      example:"true"`
	SavedAt    *time.Time `json:"saved_at"    example:"2024-05-01T10:00:00Z"`
}

// UpdateLocationRequest is a partial edit. Omitted or null fields are left
// unchanged; an empty string clears a text field. Coordinates are replaced as
// a pair.
type UpdateLocationRequest struct {
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Accuracy   *float64 `json:"accuracy"`
	Address    *string  `json:"address"`
	Note       *string  `json:"note"`
	CategoryID *string  `json:"category_id"`
	Floor      *string  `json:"floor"`
	PlaceRef   *string  `json:"place_ref"`
	Active     *bool    `json:"active"`
}

// ListLocationsResponse is one page of history, newest first. NextCursor is
// null on the last page.
type ListLocationsResponse struct {
	Items      []domain.Location `json:"items"`
	NextCursor *string           `json:"next_cursor"`
}

//
// Helpers
//

// parseTimeParam parses an optional RFC 3339 query parameter.
func parseTimeParam(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}

// listETag derives a weak validator from the user's row count, last update
// and the (canonicalized) query, so any write or enrichment changes it.
func listETag(userID string, count int64, maxUpdated *time.Time, c *gin.Context) string {
	var ts int64
	if maxUpdated != nil {
		ts = maxUpdated.UnixNano()
	}
	hs := fnv.New64a()
	_, _ = hs.Write([]byte(userID))
	_, _ = hs.Write([]byte{0})
	_, _ = hs.Write([]byte(c.Request.URL.Query().Encode()))
	return fmt.Sprintf(`W/"locations:%d:%d:%x"`, count, ts, hs.Sum64())
}

func validID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "location id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// CreateLocation godoc
// @ID          createLocation
// @Summary     Save a location
// @Description Saves a location to the caller's history and returns it immediately.
// @Description Records with coordinates but no address get the address filled in asynchronously.
// @Description Supports idempotency via the Idempotency-Key header (same key → same record).
// @Tags        Locations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateLocationRequest  true  "Location payload"
//
// @Success     201  {object}  domain.Location
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many requests"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /locations [post]
func (h *Handlers) CreateLocation(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	// Replay path: the key already produced a record.
	if rid, found := middleware.ReplayResourceID(c); found {
		loc, err := h.locSvc.Get(ctx, uid, rid)
		if err != nil {
			failService(c, err, ErrCodeInternal)
			return
		}
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusCreated, loc)
		return
	}

	var req CreateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	loc, err := h.locSvc.Create(ctx, uid, services.CreateLocationInput{
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Accuracy:   req.Accuracy,
		Address:    req.Address,
		Note:       req.Note,
		CategoryID: req.CategoryID,
		Floor:      req.Floor,
		PlaceRef:   req.PlaceRef,
		Active:     req.Active,
		SavedAt:    req.SavedAt,
	})
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}

	if key, present := middleware.GetIdempotencyKey(c); present {
		if winner := h.recordIdempotency(c, uid, key, loc); winner != nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			loc = winner
		}
	}

	ok(c, http.StatusCreated, loc)
}

// recordIdempotency stores key → loc.ID. When a concurrent request with the
// same key got there first, the record just created is removed and the
// winner's record is returned. Other failures are logged and ignored.
func (h *Handlers) recordIdempotency(c *gin.Context, uid, key string, loc *domain.Location) *domain.Location {
	db := h.db()
	if db == nil {
		return nil
	}
	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)

	_, err := repo.CreateIdempotency(ctx, db, uid, IdempotencyScope, key, loc.ID, http.StatusCreated, h.IdempotencyTTL)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		lg.Warn().Err(err).Msg("idempotency record not stored")
		return nil
	}

	rec, err := repo.GetIdempotency(ctx, db, uid, IdempotencyScope, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil
	}
	winner, err := h.locSvc.Get(ctx, uid, rec.ResourceID)
	if err != nil {
		return nil
	}
	if err := h.locSvc.Delete(ctx, uid, loc.ID); err != nil {
		lg.Warn().Err(err).Str("location_id", loc.ID).Msg("duplicate create not rolled back")
	}
	return winner
}

// ListLocations godoc
// @ID          listLocations
// @Summary     List saved locations
// @Description Returns the caller's history newest first (saved_at, then id, descending).
// @Description Follow next_cursor until it is null to visit every matching record once.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Locations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       limit      query   int     false "Page size"  minimum(1) maximum(100) default(20)
// @Param       cursor     query   string  false "next_cursor from the previous page, or an RFC 3339 timestamp"
// @Param       q          query   string  false "Case-insensitive text in address or note"
// @Param       category   query   string  false "Category id"
// @Param       from       query   string  false "Earliest saved_at (RFC 3339, inclusive)"
// @Param       to         query   string  false "Latest saved_at (RFC 3339, inclusive)"
//
// @Success     200  {object}  handlers.ListLocationsResponse
// @Success     304  "Not modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /locations [get]
func (h *Handlers) ListLocations(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	from, err := parseTimeParam(c, "from")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	to, err := parseTimeParam(c, "to")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	// Reject bad input before the ETag check so a stale validator can't turn
	// a 400 into a 304.
	if _, err := pagination.Parse(c.Query("cursor")); err != nil {
		failService(c, services.ErrInvalidCursor, ErrCodeListFailed)
		return
	}
	if from != nil && to != nil && from.After(*to) {
		failService(c, services.ErrInvalidDateFilter, ErrCodeListFailed)
		return
	}

	// ETag pre-check (best effort).
	if db := h.db(); db != nil {
		if count, maxTS, err := repo.LocationsStats(ctx, db, uid); err == nil {
			etag := listETag(uid, count, maxTS, c)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, err := h.locSvc.ListPage(ctx, uid,
		pagination.AtoiDefault(c.Query("limit"), pagination.DefaultLimit),
		c.Query("cursor"),
		services.ListFilters{
			Text:       c.Query("q"),
			CategoryID: c.Query("category"),
			From:       from,
			To:         to,
		})
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}

	ok(c, http.StatusOK, ListLocationsResponse{Items: page.Items, NextCursor: page.NextCursor})
}

// GetLocation godoc
// @ID          getLocation
// @Summary     Get a saved location
// @Tags        Locations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Location ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Location
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /locations/{id} [get]
func (h *Handlers) GetLocation(c *gin.Context) {
	id, valid := validID(c)
	if !valid {
		return
	}
	loc, err := h.locSvc.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, loc)
}

// UpdateLocation godoc
// @ID          updateLocation
// @Summary     Edit a saved location
// @Description Applies a partial update. Changing the coordinates of a record
// @Description without an address schedules a new address lookup.
// @Tags        Locations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Location ID (UUID)"  format(uuid)
// @Param       body       body    handlers.UpdateLocationRequest  true  "Fields to change"
//
// @Success     200  {object}  domain.Location
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /locations/{id} [patch]
func (h *Handlers) UpdateLocation(c *gin.Context) {
	id, valid := validID(c)
	if !valid {
		return
	}
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	loc, err := h.locSvc.Update(c.Request.Context(), middleware.UserID(c), id, services.UpdateLocationInput{
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Accuracy:   req.Accuracy,
		Address:    req.Address,
		Note:       req.Note,
		CategoryID: req.CategoryID,
		Floor:      req.Floor,
		PlaceRef:   req.PlaceRef,
		Active:     req.Active,
	})
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, loc)
}

// DeleteLocation godoc
// @ID          deleteLocation
// @Summary     Delete a saved location
// @Tags        Locations
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Location ID (UUID)"  format(uuid)
//
// @Success     204  "Deleted"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /locations/{id} [delete]
func (h *Handlers) DeleteLocation(c *gin.Context) {
	id, valid := validID(c)
	if !valid {
		return
	}
	if err := h.locSvc.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		failService(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}
