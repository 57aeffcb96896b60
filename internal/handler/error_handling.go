package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tavern-server/internal/domain"
)

// APIError is the standardized error response body.
type APIError struct {
	Message string `json:"message"`
}

func handleServiceError(c *gin.Context, log *zap.Logger, err error) {
	var statusCode int
	var resp APIError

	switch {
	case errors.Is(err, domain.ErrCardNotFound):
		statusCode = http.StatusNotFound
		resp = APIError{Message: "Card not found"}
	case errors.Is(err, domain.ErrNPCNotFound):
		statusCode = http.StatusNotFound
		resp = APIError{Message: "NPC not found"}
	case errors.Is(err, domain.ErrStateNotFound):
		statusCode = http.StatusNotFound
		resp = APIError{Message: "No game session for this player"}
	case errors.Is(err, domain.ErrNotFound):
		statusCode = http.StatusNotFound
		resp = APIError{Message: "Not found"}
	case errors.Is(err, domain.ErrNoEligibleCards):
		statusCode = http.StatusConflict
		resp = APIError{Message: "No card can be shown for the current state"}
	case errors.Is(err, domain.ErrInvalidOption):
		statusCode = http.StatusBadRequest
		resp = APIError{Message: "Option index out of range"}
	case errors.Is(err, domain.ErrCardOptionCount):
		statusCode = http.StatusBadRequest
		resp = APIError{Message: "A card must carry exactly four options"}
	case errors.Is(err, domain.ErrUnknownNPC):
		statusCode = http.StatusBadRequest
		resp = APIError{Message: "Card references an unknown NPC"}
	case errors.Is(err, domain.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		resp = APIError{Message: "Invalid input data"}
	case errors.Is(err, domain.ErrConfigNotInitialized):
		statusCode = http.StatusServiceUnavailable
		resp = APIError{Message: "Game config is not initialized"}
	case errors.Is(err, domain.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		resp = APIError{Message: "Unauthorized"}
	case errors.Is(err, domain.ErrForbidden):
		statusCode = http.StatusForbidden
		resp = APIError{Message: "Forbidden"}
	default:
		log.Error("Unhandled service error", zap.Error(err))
		statusCode = http.StatusInternalServerError
		resp = APIError{Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, resp)
}
