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

type sessionService interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	ListActive(ctx context.Context, userID string) ([]models.Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeOthers(ctx context.Context, userID, keepSessionID string) error
}

// SessionHandler exposes session tracking for the authenticated user.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// List godoc
// @Summary List active sessions
// @Description List the live sessions of the authenticated user
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.service.ListActive(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, map[string]interface{}{"count": len(sessions)})
}

// Revoke godoc
// @Summary Revoke a session
// @Description End a session and invalidate its refresh tokens
// @Tags Sessions
// @Produce json
// @Param id path string true "Session id"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Revoke(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if session.UserID != claims.UserID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	if err := h.service.Revoke(c.Request.Context(), session.ID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// RevokeOthers godoc
// @Summary Revoke other sessions
// @Description End every session of the user except the current one
// @Tags Sessions
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/others [delete]
func (h *SessionHandler) RevokeOthers(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.RevokeOthers(c.Request.Context(), claims.UserID, claims.SessionID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
