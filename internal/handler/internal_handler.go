package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/secure-auth-api/internal/models"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
	"github.com/noah-isme/secure-auth-api/pkg/response"
)

type internalService interface {
	GetUser(ctx context.Context, userID string) (*models.UserInfo, error)
	ValidateUser(ctx context.Context, userID string) (*models.UserValidation, error)
	ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error)
	HighRiskEvents(ctx context.Context, window time.Duration) ([]models.SecurityEvent, error)
	Stats(ctx context.Context) (*models.SystemStats, error)
	Metrics() models.MetricsSnapshot
}

// InternalHandler exposes the service-to-service surface. Routes are guarded
// by the shared service key, not user tokens.
type InternalHandler struct {
	service internalService
}

// NewInternalHandler creates a new handler.
func NewInternalHandler(svc internalService) *InternalHandler {
	return &InternalHandler{service: svc}
}

// GetUser godoc
// @Summary Look up an identity
// @Description Return a user profile for a sibling service
// @Tags Internal
// @Produce json
// @Param id path string true "User id"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /internal/users/{id} [get]
func (h *InternalHandler) GetUser(c *gin.Context) {
	info, err := h.service.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info)
}

// ValidateUser godoc
// @Summary Validate an identity
// @Description Report whether a user id exists and is usable, without the full profile
// @Tags Internal
// @Produce json
// @Param id path string true "User id"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /internal/users/{id}/validate [get]
func (h *InternalHandler) ValidateUser(c *gin.Context) {
	validation, err := h.service.ValidateUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, validation)
}

// ValidateToken godoc
// @Summary Validate an access token
// @Description Verify a user access token on behalf of a sibling service
// @Tags Internal
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /internal/token/validate [post]
func (h *InternalHandler) ValidateToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "bearer token required"))
		return
	}

	claims, err := h.service.ValidateToken(c.Request.Context(), parts[1])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claims)
}

// HighRiskEvents godoc
// @Summary Recent high-risk events
// @Description List high-risk security events for sibling services
// @Tags Internal
// @Produce json
// @Param hours query int false "Window in hours (default 24)"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /internal/audit/high-risk [get]
func (h *InternalHandler) HighRiskEvents(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 24*7 {
			hours = parsed
		}
	}

	events, err := h.service.HighRiskEvents(c.Request.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, events, map[string]interface{}{"count": len(events), "window_hours": hours})
}

// Stats godoc
// @Summary Aggregate statistics
// @Description Return persisted user/session/device/event counts
// @Tags Internal
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /internal/stats [get]
func (h *InternalHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats)
}

// Metrics godoc
// @Summary Metrics snapshot
// @Description Return the process-level metrics snapshot
// @Tags Internal
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /internal/metrics [get]
func (h *InternalHandler) Metrics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Metrics())
}
