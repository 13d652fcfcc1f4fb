// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings that clients branch on. Each
// error response carries exactly one of them together with the HTTP status.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "location not found"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-location-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific storage failures:
	ErrCodeCreateFailed = "create_failed"
	ErrCodeListFailed   = "list_failed"
	ErrCodeUpdateFailed = "update_failed"
	ErrCodeDeleteFailed = "delete_failed"
)

// failService maps a service error onto the envelope. Validation errors are
// 400 with the service message, missing resources 404, anything else 500
// with storageCode and a generic message.
func failService(c *gin.Context, err error, storageCode string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrLocationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "location not found")
	case errors.Is(err, services.ErrAddressNotResolved):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no match found")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, storageCode, "internal server error")
	}
}
