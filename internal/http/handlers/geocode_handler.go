// Geocoding HTTP handlers.
//
//   - GET /geocode?q=...               (address → coordinates)
//   - GET /geocode/reverse?lat=&lng=   (coordinates → address)
//
// Both routes are throttled per caller because every cache miss spends the
// provider's quota. A provider outage and "no match" both answer 404.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// GeocodeResponse is a forward lookup result.
type GeocodeResponse struct {
	Latitude  float64 `json:"latitude"          example:"52.3731"`
	Longitude float64 `json:"longitude"         example:"4.8922"`
	Display   string  `json:"display,omitempty" example:"Dam, Amsterdam, Noord-Holland, Nederland"`
}

// ReverseGeocodeResponse is a reverse lookup result.
type ReverseGeocodeResponse struct {
	Address string `json:"address"           example:"Dam 1, 1012 JS Amsterdam"`
	Display string `json:"display,omitempty" example:"Dam, Amsterdam, Noord-Holland, Nederland"`
}

func floatParam(c *gin.Context, name string) (float64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" is required")
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a number")
		return 0, false
	}
	return v, true
}

// Geocode godoc
// @ID          geocode
// @Summary     Resolve an address to coordinates
// @Description Looks up free text in the geocoding cache, then the provider.
// @Tags        Geocoding
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       q          query   string  true  "Address text (at least 3 characters)"  example(Dam 1, Amsterdam)
//
// @Success     200  {object}  handlers.GeocodeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "No match found"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many requests"
// @Router      /geocode [get]
func (h *Handlers) Geocode(c *gin.Context) {
	coords, err := h.geoSvc.Forward(c.Request.Context(), c.Query("q"))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, GeocodeResponse{Latitude: coords.Lat, Longitude: coords.Lng, Display: coords.Display})
}

// ReverseGeocode godoc
// @ID          reverseGeocode
// @Summary     Resolve coordinates to an address
// @Tags        Geocoding
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       lat        query   number  true  "Latitude in [-90, 90]"    example(52.3731)
// @Param       lng        query   number  true  "Longitude in [-180, 180]" example(4.8922)
//
// @Success     200  {object}  handlers.ReverseGeocodeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "No match found"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many requests"
// @Router      /geocode/reverse [get]
func (h *Handlers) ReverseGeocode(c *gin.Context) {
	lat, valid := floatParam(c, "lat")
	if !valid {
		return
	}
	lng, valid := floatParam(c, "lng")
	if !valid {
		return
	}
	addr, err := h.geoSvc.Reverse(c.Request.Context(), lat, lng)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, ReverseGeocodeResponse{Address: addr.Address, Display: addr.Display})
}
