package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-ai/recall/src/config"
	"github.com/recall-ai/recall/src/models"
)

func testPlans() map[string]config.PlanConfig {
	return map[string]config.PlanConfig{
		"free":       {CustomThreshold: false, SharedPool: false},
		"startup":    {CustomThreshold: false, SharedPool: true},
		"business":   {CustomThreshold: true, SharedPool: true},
		"enterprise": {CustomThreshold: true, SharedPool: true},
	}
}

func runMiddleware(t *testing.T, headers map[string]string) (*httptest.ResponseRecorder, *models.CallerContext) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/cache/lookup", nil)
	for k, v := range headers {
		c.Request.Header.Set(k, v)
	}

	NewCallerMiddleware(testPlans()).RequireCaller()(c)
	return w, CallerFrom(c)
}

func TestRequireCaller_MissingIdentity(t *testing.T) {
	w, caller := runMiddleware(t, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, caller)
}

func TestRequireCaller_UserHeader(t *testing.T) {
	_, caller := runMiddleware(t, map[string]string{
		"X-User-ID": "u1",
		"X-Plan":    "business",
	})

	require.NotNil(t, caller)
	assert.Equal(t, "u1", caller.UserID)
	assert.Equal(t, "business", caller.Plan)
	assert.True(t, caller.AllowCustomThreshold)
	assert.True(t, caller.SharedPool)
}

func TestRequireCaller_BearerFallback(t *testing.T) {
	_, caller := runMiddleware(t, map[string]string{
		"Authorization": "Bearer u42",
	})

	require.NotNil(t, caller)
	assert.Equal(t, "u42", caller.UserID)
}

func TestRequireCaller_DefaultsToFreePlan(t *testing.T) {
	_, caller := runMiddleware(t, map[string]string{
		"X-User-ID": "u1",
	})

	require.NotNil(t, caller)
	assert.Equal(t, "free", caller.Plan)
	assert.False(t, caller.AllowCustomThreshold)
	assert.False(t, caller.SharedPool)
}

func TestRequireCaller_UnknownPlanGetsFreeCapabilities(t *testing.T) {
	_, caller := runMiddleware(t, map[string]string{
		"X-User-ID": "u1",
		"X-Plan":    "platinum",
	})

	require.NotNil(t, caller)
	assert.Equal(t, "free", caller.Plan)
	assert.False(t, caller.AllowCustomThreshold)
}
