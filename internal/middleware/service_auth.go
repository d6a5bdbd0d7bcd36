package middleware

import (
	"crypto/hmac"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
	"github.com/noah-isme/secure-auth-api/pkg/response"
)

// ServiceKeyHeader authenticates sibling services on the internal surface.
const ServiceKeyHeader = "X-Service-Key"

// ServiceAuth guards internal routes with a shared service key. The compare
// is constant-time.
func ServiceAuth(serviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if serviceKey == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "internal api disabled"))
			c.Abort()
			return
		}

		presented := c.GetHeader(ServiceKeyHeader)
		if presented == "" || !hmac.Equal([]byte(presented), []byte(serviceKey)) {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
