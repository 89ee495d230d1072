package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/models"
)

const callerContextKey = "caller"

// CallerMiddleware turns the outer gateway's identity headers into a
// CallerContext. Authentication itself happens upstream of this service;
// this is only the handoff seam, mapping the asserted user and plan onto
// the plan capabilities the engine enforces.
type CallerMiddleware struct {
	plans map[string]config.PlanConfig
}

func NewCallerMiddleware(plans map[string]config.PlanConfig) *CallerMiddleware {
	return &CallerMiddleware{plans: plans}
}

func (m *CallerMiddleware) RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			// Gateways that forward the raw token put the user id in the
			// bearer slot instead.
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				userID = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
			c.Abort()
			return
		}

		plan := c.GetHeader("X-Plan")
		if plan == "" {
			plan = "free"
		}
		caps, ok := m.plans[plan]
		if !ok {
			// Unknown plan names get free-tier capabilities, not an error.
			plan = "free"
			caps = m.plans[plan]
		}

		c.Set(callerContextKey, &models.CallerContext{
			UserID:               userID,
			Plan:                 plan,
			AllowCustomThreshold: caps.CustomThreshold,
			SharedPool:           caps.SharedPool,
		})
		c.Next()
	}
}

// CallerFrom extracts the caller placed on the context by RequireCaller.
func CallerFrom(c *gin.Context) *models.CallerContext {
	if v, ok := c.Get(callerContextKey); ok {
		if caller, ok := v.(*models.CallerContext); ok {
			return caller
		}
	}
	return nil
}
