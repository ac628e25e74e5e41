package middleware

import (
	"net/http"
	"strings"

	"carelink/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PartyHeader names the acting care seeker or caregiver. Identity is asserted
// by the caller; authentication happens upstream of this service.
const PartyHeader = "X-Party-ID"

const partyKey = "partyID"

// RequireParty rejects requests without an acting party and stores it on the
// context for handlers.
func RequireParty() gin.HandlerFunc {
	return func(c *gin.Context) {
		party := strings.TrimSpace(c.GetHeader(PartyHeader))
		if party == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, utils.ErrorResponse{
				Code:    "validationError",
				Message: "Missing acting party",
				Details: PartyHeader + " header is required",
			})
			return
		}
		c.Set(partyKey, party)
		if l, ok := c.Get("logger"); ok {
			if logger, ok := l.(*zap.Logger); ok {
				c.Set("logger", logger.With(zap.String("partyID", party)))
			}
		}
		c.Next()
	}
}

// PartyID returns the acting party set by RequireParty.
func PartyID(c *gin.Context) string {
	return c.GetString(partyKey)
}

// RequestLogger attaches a request-scoped zap logger under "logger".
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", utils.GetLogger().With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("ip", getClientIP(c)),
		))
		c.Next()
	}
}
