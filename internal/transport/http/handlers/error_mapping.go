package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
// An empty Message reuses the sentinel's own text.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

const (
	internalErrorMessage    = "internal server error"
	unavailableErrorMessage = "service temporarily unavailable, please retry"
)

// authErrorCases is the taxonomy table shared by the auth endpoints. Order
// matters: specific sentinels come before the kind they belong to.
var authErrorCases = []ErrorCase{
	{Err: domain.ErrEmailExists, Status: http.StatusBadRequest},
	{Err: domain.ErrConflict, Status: http.StatusBadRequest},
	{Err: domain.ErrInvalidCredentials, Status: http.StatusUnauthorized},
	{Err: domain.ErrAuth, Status: http.StatusUnauthorized, Message: domain.ErrUnauthenticated.Error()},
	{Err: domain.ErrRateLimit, Status: http.StatusTooManyRequests, Message: domain.ErrRateLimited.Error()},
	{Err: domain.ErrTransient, Status: http.StatusServiceUnavailable, Message: unavailableErrorMessage},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Validation errors always surface their own message. Anything unmatched is
// attached to the gin context for the access log and never echoed to the client.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(validation.Message))
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			message := cs.Message
			if message == "" {
				message = cs.Err.Error()
			}
			if cs.Status >= http.StatusInternalServerError {
				_ = c.Error(err)
			}
			c.JSON(cs.Status, NewErrorResponse(message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(fallbackMessage))
}

// respondAuthError applies the auth taxonomy with a 500 fallback.
func respondAuthError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, authErrorCases, http.StatusInternalServerError, internalErrorMessage)
}
