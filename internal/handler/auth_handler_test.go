package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/secure-auth-api/internal/middleware"
	"github.com/noah-isme/secure-auth-api/internal/models"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

type authServiceMock struct {
	loginResp      *models.LoginResponse
	loginErr       error
	lastLogin      models.LoginRequest
	loginCalled    bool
	registerResp   *models.UserInfo
	registerErr    error
	refreshResp    *models.TokenPair
	refreshErr     error
	logoutErr      error
	forgotErr      error
	resetErr       error
	verifyEmailErr error
	changeErr      error
	lastChangeUser string
	profileResp    *models.UserInfo
	profileErr     error
}

func (m *authServiceMock) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	return m.registerResp, m.registerErr
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.loginCalled = true
	m.lastLogin = req
	return m.loginResp, m.loginErr
}

func (m *authServiceMock) VerifyMFA(ctx context.Context, req models.MFAVerifyRequest) (*models.LoginResponse, error) {
	return m.loginResp, m.loginErr
}

func (m *authServiceMock) Refresh(ctx context.Context, req models.RefreshRequest) (*models.TokenPair, error) {
	return m.refreshResp, m.refreshErr
}

func (m *authServiceMock) Logout(ctx context.Context, req models.LogoutRequest) error {
	return m.logoutErr
}

func (m *authServiceMock) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	return m.forgotErr
}

func (m *authServiceMock) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	return m.resetErr
}

func (m *authServiceMock) VerifyEmail(ctx context.Context, req models.VerifyEmailRequest) error {
	return m.verifyEmailErr
}

func (m *authServiceMock) ChangePassword(ctx context.Context, userID, sessionID, ip, userAgent string, req models.ChangePasswordRequest) error {
	m.lastChangeUser = userID
	return m.changeErr
}

func (m *authServiceMock) GetProfile(ctx context.Context, userID string) (*models.UserInfo, error) {
	return m.profileResp, m.profileErr
}

func postJSON(c *gin.Context, path, body string) {
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Chrome/124")
	c.Request = req
}

func TestAuthHandlerLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{
		loginResp: &models.LoginResponse{Status: models.LoginStatusOK, SessionID: "s1"},
	}
	handler := NewAuthHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/auth/login", `{"email":"alice@example.com","password":"secret"}`)

	handler.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.loginCalled)
	assert.Equal(t, "alice@example.com", mockSvc.lastLogin.Email)
	assert.Equal(t, "Chrome/124", mockSvc.lastLogin.UserAgent)

	var envelope struct {
		Data models.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "s1", envelope.Data.SessionID)
}

func TestAuthHandlerLoginMFARequiredIsAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{
		loginResp: &models.LoginResponse{Status: models.LoginStatusMFARequired, MFAToken: "m1"},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/auth/login", `{"email":"alice@example.com","password":"secret"}`)

	handler.Login(c)
	require.Equal(t, http.StatusAccepted, w.Code)

	var envelope struct {
		Data models.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.LoginStatusMFARequired, envelope.Data.Status)
	assert.Equal(t, "m1", envelope.Data.MFAToken)
}

func TestAuthHandlerLoginInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{}
	handler := NewAuthHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/auth/login", `{"email":`)

	handler.Login(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.loginCalled)
}

func TestAuthHandlerLoginRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limited := appErrors.Clone(appErrors.ErrRateLimited, "")
	limited.RetryAfter = 30
	handler := NewAuthHandler(&authServiceMock{loginErr: limited})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/auth/login", `{"email":"alice@example.com","password":"secret"}`)

	handler.Login(c)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestAuthHandlerRegisterCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{
		registerResp: &models.UserInfo{ID: "u1", Email: "bob@example.com"},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/auth/register", `{"email":"bob@example.com","password":"long-enough","full_name":"Bob"}`)

	handler.Register(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestAuthHandlerForgotPasswordAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/auth/forgot-password", `{"email":"whoever@example.com"}`)

	handler.ForgotPassword(c)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestAuthHandlerChangePasswordRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{}
	handler := NewAuthHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/auth/change-password", `{"old_password":"a","new_password":"long-enough"}`)

	handler.ChangePassword(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, mockSvc.lastChangeUser)
}

func TestAuthHandlerChangePassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{}
	handler := NewAuthHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	postJSON(c, "/auth/change-password", `{"old_password":"a","new_password":"long-enough"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", SessionID: "s1"})

	handler.ChangePassword(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "u1", mockSvc.lastChangeUser)
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{
		profileResp: &models.UserInfo{ID: "u1", Email: "alice@example.com"},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1"})

	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
}
