package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/recall-ai/recall/src/matcher"
	"github.com/recall-ai/recall/src/middleware"
	"github.com/recall-ai/recall/src/models"
	"github.com/recall-ai/recall/src/tiering"
)

// CacheHandler exposes the request-path surface: similarity lookup and the
// miss-path insert.
type CacheHandler struct {
	matcher *matcher.Matcher
	manager *tiering.Manager
}

func NewCacheHandler(m *matcher.Matcher, manager *tiering.Manager) *CacheHandler {
	return &CacheHandler{
		matcher: m,
		manager: manager,
	}
}

// HandleLookup answers hit/miss for a query embedding. Policy violations
// are real errors; cache-side failures are not, they degrade to a miss so
// the caller just pays for one upstream call it would have made anyway.
func (h *CacheHandler) HandleLookup(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	if caller == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
		return
	}

	var req models.LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.matcher.Match(c.Request.Context(), caller, &req)
	if err != nil {
		if errors.Is(err, models.ErrPolicyViolation) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		// Anything else from the cache subsystem is reported as a miss.
		c.JSON(http.StatusOK, &models.LookupResponse{Hit: false, Degraded: true})
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleInsert stores a fresh upstream answer obtained after a miss.
func (h *CacheHandler) HandleInsert(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	if caller == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
		return
	}

	var req models.InsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.manager.Insert(c.Request.Context(), caller, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, &models.InsertResponse{EntryID: entry.ID})
}
