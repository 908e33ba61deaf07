package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
)

// writeError maps a domain error to its HTTP status. ErrJobClaimed is
// the correctness signal for race-safe acceptance: the loser must see
// a clear 409, not a generic failure.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrNoActiveTimer):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, dispatch.ErrNotAssignedPro):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrJobNotFound), errors.Is(err, dispatch.ErrProNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrJobClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": "job already accepted by another pro"})
	case errors.Is(err, dispatch.ErrInvalidState), errors.Is(err, dispatch.ErrJobTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrTooFarAway):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
