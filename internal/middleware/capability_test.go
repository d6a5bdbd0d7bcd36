package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/secure-auth-api/internal/models"
)

func capabilityRequest(t *testing.T, capability models.Capability, claims *models.JWTClaims) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	r := gin.New()
	r.GET("/guarded", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
	}, RequireCapability(capability), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest(http.MethodGet, "/guarded", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireCapabilityAllowsGrantedRole(t *testing.T) {
	w := capabilityRequest(t, models.CapDevicesRead, &models.JWTClaims{UserID: "u1", Role: models.RoleUser})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireCapabilityForbidsUngrantedRole(t *testing.T) {
	w := capabilityRequest(t, models.CapUsersUnlock, &models.JWTClaims{UserID: "u1", Role: models.RoleUser})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireCapabilityWithoutClaims(t *testing.T) {
	w := capabilityRequest(t, models.CapDevicesRead, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(claims *models.JWTClaims) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := gin.New()
		r.GET("/guarded", func(c *gin.Context) {
			if claims != nil {
				c.Set(ContextUserKey, claims)
			}
		}, RequireRoles(models.RoleOperator), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		req, _ := http.NewRequest(http.MethodGet, "/guarded", nil)
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, run(&models.JWTClaims{UserID: "op", Role: models.RoleOperator}).Code)
	assert.Equal(t, http.StatusForbidden, run(&models.JWTClaims{UserID: "u1", Role: models.RoleUser}).Code)
	assert.Equal(t, http.StatusUnauthorized, run(nil).Code)
}
