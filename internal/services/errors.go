// Package services defines the business logic for saved locations and address
// resolution. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every input error. Handlers map anything
// matching errors.Is(err, ErrValidation) to 400.
var ErrValidation = errors.New("validation failed")

// Location errors.
var (
	// ErrLocationNotFound indicates that the requested location does not exist
	// or is not owned by the caller.
	ErrLocationNotFound = errors.New("location not found")

	ErrInvalidLatitude   = fmt.Errorf("%w: latitude must be within [-90, 90]", ErrValidation)
	ErrInvalidLongitude  = fmt.Errorf("%w: longitude must be within [-180, 180]", ErrValidation)
	ErrIncompletePair    = fmt.Errorf("%w: latitude and longitude must be given together", ErrValidation)
	ErrAddressTooShort   = fmt.Errorf("%w: address must be at least 3 characters", ErrValidation)
	ErrAddressTooLong    = fmt.Errorf("%w: address must be at most 500 characters", ErrValidation)
	ErrNoteTooLong       = fmt.Errorf("%w: note must be at most 500 characters", ErrValidation)
	ErrFieldTooLong      = fmt.Errorf("%w: field too long", ErrValidation)
	ErrInvalidAccuracy   = fmt.Errorf("%w: accuracy must be a non-negative number", ErrValidation)
	ErrPlaceRequired     = fmt.Errorf("%w: coordinates or an address are required", ErrValidation)
	ErrInvalidCursor     = fmt.Errorf("%w: malformed cursor", ErrValidation)
	ErrInvalidFilter     = fmt.Errorf("%w: invalid filter", ErrValidation)
	ErrInvalidDateFilter = fmt.Errorf("%w: from must not be after to", ErrInvalidFilter)
)

// Geocoding errors.
var (
	// ErrEmptyQuery is returned when an address lookup has no usable text.
	ErrEmptyQuery = fmt.Errorf("%w: query is too short", ErrValidation)

	// ErrAddressNotResolved means the provider found nothing or was
	// unavailable; the two cases are indistinguishable to callers.
	ErrAddressNotResolved = errors.New("address could not be resolved")
)
