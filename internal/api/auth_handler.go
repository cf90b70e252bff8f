package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"weddingdesk/internal/middleware"
	"weddingdesk/internal/model"
	"weddingdesk/internal/repository"
	"weddingdesk/internal/service"
	v1 "weddingdesk/pkg/api/v1"
	"weddingdesk/pkg/constraints"
	"weddingdesk/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthProvider interface {
	Login(ctx context.Context, identifier, secret string) (*v1.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*v1.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Profile(ctx context.Context, userID string) (*v1.User, error)
	UpdateProfile(ctx context.Context, userID string, in v1.UpdateProfileRequest) (*v1.User, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
	ParseAccessToken(token string) (*service.UserClaims, error)
}

type AuthHandler struct {
	svc   AuthProvider
	audit repository.AuditInterface
}

// NewAuthHandler records auth events to audit when it is non-nil.
func NewAuthHandler(svc AuthProvider, audit repository.AuditInterface) *AuthHandler {
	return &AuthHandler{svc: svc, audit: audit}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body v1.LoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), body.Identifier, body.Secret)
	if err != nil {
		h.record(c, constraints.AuditLoginFailed, "", body.Identifier, errorCode(err))
		writeError(c, err)
		return
	}
	h.record(c, constraints.AuditLoginSucceeded, resp.User.ID, body.Identifier, "")
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var body v1.RefreshRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), body.RefreshToken)
	if err != nil {
		if !isAuthError(err) {
			logger.Error("refresh failed", zap.Error(err))
		}
		h.record(c, constraints.AuditRefreshRejected, "", "", errorCode(err))
		c.JSON(http.StatusUnauthorized, v1.ErrorBody{
			Message: "your session has expired, please sign in again",
			Error:   constraints.CodeInvalidRefreshToken,
		})
		return
	}
	if claims, err := h.svc.ParseAccessToken(pair.AccessToken); err == nil {
		h.record(c, constraints.AuditRefreshed, claims.UserID, "", "")
	}
	c.JSON(http.StatusOK, pair)
}

// Logout is public: the refresh token in the body identifies the session,
// so a client holding an expired access token can still sign out.
func (h *AuthHandler) Logout(c *gin.Context) {
	var body v1.LogoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.Logout(c.Request.Context(), body.RefreshToken); err != nil {
		logger.Error("logout failed", zap.Error(err))
	}
	h.record(c, constraints.AuditLogout, "", "", "")
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) GetProfile(c *gin.Context) {
	op := service.GetOperatorInfo(c.Request.Context())
	u, err := h.svc.Profile(c.Request.Context(), op.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var body v1.UpdateProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	op := service.GetOperatorInfo(c.Request.Context())
	u, err := h.svc.UpdateProfile(c.Request.Context(), op.UserID, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var body v1.ChangePasswordRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	op := service.GetOperatorInfo(c.Request.Context())
	if err := h.svc.ChangePassword(c.Request.Context(), op.UserID, body.CurrentPassword, body.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			// a 401 here would make the client discard a valid session
			c.JSON(http.StatusUnprocessableEntity, v1.ErrorBody{
				Message: "current password is incorrect",
				Error:   constraints.CodeValidation,
				Errors:  map[string]string{"currentPassword": "incorrect"},
			})
			return
		}
		writeError(c, err)
		return
	}
	h.record(c, constraints.AuditPasswordChanged, op.UserID, "", "")
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func isAuthError(err error) bool {
	return errors.Is(err, service.ErrTokenInvalid) ||
		errors.Is(err, service.ErrSessionExpired) ||
		errors.Is(err, service.ErrAccountLocked)
}

// ListAudits serves GET /auth/audits?page=&pageSize=&userId= to admins.
func (h *AuthHandler) ListAudits(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusOK, v1.Page[v1.AuditEntry]{Items: []v1.AuditEntry{}, Page: 1})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	page = max(page, 1)
	pageSize = min(max(pageSize, 1), 100)

	rows, total, err := h.audit.List(c.Request.Context(), c.Query("userId"), (page-1)*pageSize, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]v1.AuditEntry, 0, len(rows))
	for _, a := range rows {
		items = append(items, v1.AuditEntry{
			ID:         a.ID,
			UserID:     a.UserID,
			Identifier: a.Identifier,
			Event:      a.Event,
			Reason:     a.Reason,
			IP:         a.IP,
			TraceID:    a.TraceID,
			CreatedAt:  a.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, v1.Page[v1.AuditEntry]{Items: items, Total: int(total), Page: page, PageSize: pageSize})
}

// record never fails the request; a lost audit row is logged.
func (h *AuthHandler) record(c *gin.Context, event, userID, identifier, reason string) {
	if h.audit == nil {
		return
	}
	a := &model.AuthAudit{
		UserID:     userID,
		Identifier: identifier,
		Event:      event,
		Reason:     reason,
		TraceID:    c.GetString(middleware.TraceIDKey),
		IP:         c.ClientIP(),
	}
	if err := h.audit.Create(context.WithoutCancel(c.Request.Context()), a); err != nil {
		logger.Warn("audit write failed", zap.String("event", event), zap.Error(err))
	}
}
