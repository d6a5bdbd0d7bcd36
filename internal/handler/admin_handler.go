package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/secure-auth-api/internal/middleware"
	"github.com/noah-isme/secure-auth-api/internal/models"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
	"github.com/noah-isme/secure-auth-api/pkg/response"
)

type accountUnlocker interface {
	UnlockAccount(ctx context.Context, actorID, userID, ip, userAgent string) error
}

type highRiskFeed interface {
	RecentHighRisk(ctx context.Context, window time.Duration) ([]models.SecurityEvent, error)
}

// AdminHandler exposes operator actions: account unlock and the high-risk
// event feed.
type AdminHandler struct {
	auth  accountUnlocker
	audit highRiskFeed
}

// NewAdminHandler creates a new handler.
func NewAdminHandler(auth accountUnlocker, audit highRiskFeed) *AdminHandler {
	return &AdminHandler{auth: auth, audit: audit}
}

// UnlockAccount godoc
// @Summary Unlock an account
// @Description Clear a lockout caused by repeated credential failures
// @Tags Admin
// @Produce json
// @Param id path string true "User id"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users/{id}/unlock [post]
func (h *AdminHandler) UnlockAccount(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.auth.UnlockAccount(c.Request.Context(), claims.UserID, c.Param("id"), c.ClientIP(), c.GetHeader("User-Agent")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// HighRiskEvents godoc
// @Summary Recent high-risk events
// @Description List high-risk security events from the trailing window
// @Tags Admin
// @Produce json
// @Param hours query int false "Window in hours (default 24)"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/events/high-risk [get]
func (h *AdminHandler) HighRiskEvents(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 24*7 {
			hours = parsed
		}
	}

	events, err := h.audit.RecentHighRisk(c.Request.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, events, map[string]interface{}{"count": len(events), "window_hours": hours})
}
