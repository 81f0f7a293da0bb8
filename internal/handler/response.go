package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
// Conflicts get a status distinct from validation so clients can tell "you
// were too slow" from "you made a mistake".
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidRequesterID),
		errors.Is(err, service.ErrInvalidProviderID),
		errors.Is(err, service.ErrInvalidRequestID),
		errors.Is(err, service.ErrInvalidLocation),
		errors.Is(err, service.ErrInvalidService),
		errors.Is(err, service.ErrInvalidSortMode),
		errors.Is(err, service.ErrCancelReasonRequired):
		return http.StatusBadRequest

	// Authorization errors - Forbidden
	case errors.Is(err, service.ErrNotCurrentOffer),
		errors.Is(err, service.ErrNotAssignedProvider),
		errors.Is(err, service.ErrNotRequester):
		return http.StatusForbidden

	// State-conflict errors
	case errors.Is(err, service.ErrOfferAlreadyResolved),
		errors.Is(err, service.ErrRequestNotAccepted),
		errors.Is(err, service.ErrRequestNotCancellable),
		errors.Is(err, service.ErrRequestAlreadyCompleted),
		errors.Is(err, service.ErrProviderMidJob):
		return http.StatusConflict

	// Exhaustion: nobody to dispatch to
	case errors.Is(err, service.ErrNoProvidersAvailable):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
