// Package services – GeocodeService
//
// GeocodeService exposes address resolution to the HTTP layer. It validates
// input before it reaches the resolver and turns "absent" results into
// ErrAddressNotResolved so handlers can answer 404.
package services

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-location-backend/internal/domain"
	"github.com/tbourn/go-location-backend/internal/geocode"
)

// AddressResolver is the cache-first resolution layer.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, text string) (*geocode.Coordinates, bool)
	ResolveCoordinates(ctx context.Context, lat, lng float64) (*geocode.AddressResult, bool)
}

// GeocodeService validates and forwards lookups to an AddressResolver.
type GeocodeService struct {
	Resolver AddressResolver
	// MinQueryLen is the shortest normalized query accepted (runes).
	MinQueryLen int
}

// NewGeocodeService builds a GeocodeService.
func NewGeocodeService(r AddressResolver, minQueryLen int) *GeocodeService {
	if minQueryLen < 1 {
		minQueryLen = domain.MinAddressLen
	}
	return &GeocodeService{Resolver: r, MinQueryLen: minQueryLen}
}

// Forward resolves free text to coordinates.
func (s *GeocodeService) Forward(ctx context.Context, q string) (*geocode.Coordinates, error) {
	ctx, span := otel.Tracer("services/GeocodeService").Start(ctx, "Forward")
	defer span.End()

	if utf8.RuneCountInString(geocode.NormalizeQuery(q)) < s.MinQueryLen {
		return nil, ErrEmptyQuery
	}
	c, ok := s.Resolver.ResolveAddress(ctx, q)
	span.SetAttributes(attribute.Bool("geocode.found", ok))
	if !ok {
		return nil, ErrAddressNotResolved
	}
	return c, nil
}

// Reverse resolves a coordinate pair to an address.
func (s *GeocodeService) Reverse(ctx context.Context, lat, lng float64) (*geocode.AddressResult, error) {
	ctx, span := otel.Tracer("services/GeocodeService").Start(ctx, "Reverse")
	defer span.End()

	if err := checkPair(&lat, &lng); err != nil {
		return nil, err
	}
	a, ok := s.Resolver.ResolveCoordinates(ctx, lat, lng)
	span.SetAttributes(attribute.Bool("geocode.found", ok))
	if !ok {
		return nil, ErrAddressNotResolved
	}
	return a, nil
}
