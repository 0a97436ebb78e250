package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mescon/Tickarr/internal/display"
	"github.com/mescon/Tickarr/internal/logger"
	"github.com/mescon/Tickarr/internal/services"
	"github.com/mescon/Tickarr/internal/widget"
)

// Standard error messages (don't leak internal details)
const (
	ErrMsgDatabaseError       = "Database error"
	ErrMsgAuthenticationError = "Authentication error"
	ErrMsgInvalidRequest      = "Invalid request"
	ErrMsgInternalError       = "Internal server error"
	ErrMsgInvalidID           = "Invalid ID"
)

// respondWithError sends a JSON error response and logs the actual error
func respondWithError(c *gin.Context, status int, publicMsg string, err error) {
	if err != nil {
		logger.Debugf("%s: %v", publicMsg, err)
	}
	c.JSON(status, gin.H{"error": publicMsg})
}

// respondDatabaseError handles database errors consistently
func respondDatabaseError(c *gin.Context, err error) {
	respondWithError(c, http.StatusInternalServerError, ErrMsgDatabaseError, err)
}

// respondAuthError handles authentication errors consistently
func respondAuthError(c *gin.Context, err error) {
	respondWithError(c, http.StatusInternalServerError, ErrMsgAuthenticationError, err)
}

// respondBadRequest handles bad request errors, optionally exposing the error message
// Use exposeError=true only for validation errors safe to show users
func respondBadRequest(c *gin.Context, err error, exposeError bool) {
	if exposeError && err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	respondWithError(c, http.StatusBadRequest, ErrMsgInvalidRequest, err)
}

// respondNotFound handles not found errors
func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, gin.H{"error": resource + " not found"})
}

// respondBoardError maps board and scheduler errors to HTTP statuses.
func respondBoardError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, display.ErrElementNotFound):
		respondNotFound(c, "Element")
	case errors.Is(err, display.ErrWidgetNotFound):
		respondNotFound(c, "Widget")
	case errors.Is(err, services.ErrScheduleNotFound):
		respondNotFound(c, "Schedule")
	case errors.Is(err, display.ErrElementExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, display.ErrUnknownPreset), errors.Is(err, widget.ErrInvalidHost),
		errors.Is(err, services.ErrInvalidCron):
		respondBadRequest(c, err, true)
	default:
		respondWithError(c, http.StatusInternalServerError, ErrMsgInternalError, err)
	}
}
