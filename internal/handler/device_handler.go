package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/secure-auth-api/internal/middleware"
	"github.com/noah-isme/secure-auth-api/internal/models"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
	"github.com/noah-isme/secure-auth-api/pkg/response"
)

type deviceService interface {
	List(ctx context.Context, userID string) ([]models.Device, error)
	ListTrusted(ctx context.Context, userID string) ([]models.Device, error)
	Get(ctx context.Context, userID, fingerprint string) (*models.Device, error)
	Trust(ctx context.Context, userID, fingerprint string) (*models.Device, error)
	RevokeTrust(ctx context.Context, userID, fingerprint string) (*models.Device, error)
	Block(ctx context.Context, userID, fingerprint string) (*models.Device, error)
	Unblock(ctx context.Context, userID, fingerprint string) (*models.Device, error)
	GetTrustSettings(ctx context.Context, userID string) (*models.DeviceTrustSettings, error)
	UpdateTrustSettings(ctx context.Context, userID string, req models.UpdateTrustSettingsRequest) (*models.DeviceTrustSettings, error)
}

// DeviceHandler exposes the device trust lifecycle for the authenticated user.
type DeviceHandler struct {
	service deviceService
}

// NewDeviceHandler creates a new handler.
func NewDeviceHandler(svc deviceService) *DeviceHandler {
	return &DeviceHandler{service: svc}
}

// List godoc
// @Summary List devices
// @Description List every device observed for the authenticated user
// @Tags Devices
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /devices [get]
func (h *DeviceHandler) List(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	devices, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, devices, map[string]interface{}{"count": len(devices)})
}

// ListTrusted godoc
// @Summary List trusted devices
// @Description List the devices whose logins skip MFA
// @Tags Devices
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /devices/trusted [get]
func (h *DeviceHandler) ListTrusted(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	devices, err := h.service.ListTrusted(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, devices, map[string]interface{}{"count": len(devices)})
}

// Current godoc
// @Summary Get the current device
// @Description Return the device record behind the caller's access token
// @Tags Devices
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /devices/current [get]
func (h *DeviceHandler) Current(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok || claims.Fingerprint == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	device, err := h.service.Get(c.Request.Context(), claims.UserID, claims.Fingerprint)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, device)
}

// TrustCurrent godoc
// @Summary Trust the current device
// @Description Promote the device behind the caller's access token to trusted
// @Tags Devices
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /devices/current/trust [post]
func (h *DeviceHandler) TrustCurrent(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok || claims.Fingerprint == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	device, err := h.service.Trust(c.Request.Context(), claims.UserID, claims.Fingerprint)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, device)
}

// Trust godoc
// @Summary Trust a device
// @Description Promote a registered device to trusted; logins from it skip MFA
// @Tags Devices
// @Produce json
// @Param fingerprint path string true "Device fingerprint"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /devices/{fingerprint}/trust [post]
func (h *DeviceHandler) Trust(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	device, err := h.service.Trust(c.Request.Context(), claims.UserID, c.Param("fingerprint"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, device)
}

// RevokeTrust godoc
// @Summary Revoke device trust
// @Description Demote a trusted device back to registered
// @Tags Devices
// @Produce json
// @Param fingerprint path string true "Device fingerprint"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /devices/{fingerprint}/trust [delete]
func (h *DeviceHandler) RevokeTrust(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	device, err := h.service.RevokeTrust(c.Request.Context(), claims.UserID, c.Param("fingerprint"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, device)
}

// Block godoc
// @Summary Block a device
// @Description Block a device; logins from it are rejected before credential checks
// @Tags Devices
// @Produce json
// @Param fingerprint path string true "Device fingerprint"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /devices/{fingerprint}/block [post]
func (h *DeviceHandler) Block(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	device, err := h.service.Block(c.Request.Context(), claims.UserID, c.Param("fingerprint"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, device)
}

// Unblock godoc
// @Summary Unblock a device
// @Description Return a blocked device to registered; trust must be granted again explicitly
// @Tags Devices
// @Produce json
// @Param fingerprint path string true "Device fingerprint"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /devices/{fingerprint}/block [delete]
func (h *DeviceHandler) Unblock(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	device, err := h.service.Unblock(c.Request.Context(), claims.UserID, c.Param("fingerprint"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, device)
}

// GetTrustSettings godoc
// @Summary Get trust settings
// @Description Return the per-user device trust preferences
// @Tags Devices
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /devices/settings [get]
func (h *DeviceHandler) GetTrustSettings(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	settings, err := h.service.GetTrustSettings(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, settings)
}

// UpdateTrustSettings godoc
// @Summary Update trust settings
// @Description Apply a partial update to device trust preferences
// @Tags Devices
// @Accept json
// @Produce json
// @Param payload body models.UpdateTrustSettingsRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /devices/settings [put]
func (h *DeviceHandler) UpdateTrustSettings(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateTrustSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	settings, err := h.service.UpdateTrustSettings(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, settings)
}
