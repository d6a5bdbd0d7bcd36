package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/internal/service"
)

// Audit records a security event after a successful mutating request. Used on
// routes whose handlers do not audit themselves (device trust operations).
func Audit(auditSvc *service.AuditService, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID string
		if claims, ok := CurrentClaims(c); ok {
			userID = claims.UserID
		}

		auditSvc.Record(c.Request.Context(), userID, action, models.AuditOutcomeSuccess, c.ClientIP(), c.GetHeader("User-Agent"), map[string]string{
			"path":   c.FullPath(),
			"method": c.Request.Method,
			"status": strconv.Itoa(c.Writer.Status()),
		})
	}
}
