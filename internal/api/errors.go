package api

import (
	"errors"
	"net/http"

	"weddingdesk/internal/middleware"
	"weddingdesk/internal/service"
	v1 "weddingdesk/pkg/api/v1"
	"weddingdesk/pkg/constraints"
	"weddingdesk/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func writeError(c *gin.Context, err error) {
	status, body := http.StatusInternalServerError, v1.ErrorBody{
		Message: "something went wrong, please try again",
		Error:   constraints.CodeInternal,
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		status, body = http.StatusUnauthorized, v1.ErrorBody{Message: "invalid username or password", Error: constraints.CodeInvalidCredentials}
	case errors.Is(err, service.ErrAccountLocked):
		status, body = http.StatusForbidden, v1.ErrorBody{Message: "this account has been locked", Error: constraints.CodeAccountLocked}
	case errors.Is(err, service.ErrInsufficientRole):
		status, body = http.StatusForbidden, v1.ErrorBody{Message: "your role cannot sign in to the dashboard", Error: constraints.CodeInsufficientRole}
	case errors.Is(err, service.ErrUserNotFound):
		status, body = http.StatusNotFound, v1.ErrorBody{Message: "user not found", Error: constraints.CodeNotFound}
	case errors.Is(err, service.ErrWeakPassword):
		status, body = http.StatusUnprocessableEntity, v1.ErrorBody{
			Message: err.Error(),
			Error:   constraints.CodeWeakPassword,
			Errors:  map[string]string{"newPassword": err.Error()},
		}
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err))
	}
	c.JSON(status, body)
}

// errorCode is the machine code writeError would send for err.
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return constraints.CodeInvalidCredentials
	case errors.Is(err, service.ErrAccountLocked):
		return constraints.CodeAccountLocked
	case errors.Is(err, service.ErrInsufficientRole):
		return constraints.CodeInsufficientRole
	case errors.Is(err, service.ErrTokenInvalid), errors.Is(err, service.ErrSessionExpired):
		return constraints.CodeInvalidRefreshToken
	default:
		return constraints.CodeInternal
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, v1.ErrorBody{
		Message: "invalid request body",
		Error:   constraints.CodeValidation,
		Errors:  map[string]string{"body": err.Error()},
	})
}
