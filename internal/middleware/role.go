package middleware

import (
	"net/http"
	"slices"

	"weddingdesk/internal/service"
	v1 "weddingdesk/pkg/api/v1"
	"weddingdesk/pkg/constraints"

	"github.com/gin-gonic/gin"
)

// RequireRole must run after JWTMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		op := service.GetOperatorInfo(c.Request.Context())
		if op == nil {
			abort(c, http.StatusUnauthorized, constraints.CodeUnauthorized, "authentication required")
			return
		}
		if !slices.Contains(roles, op.Role) {
			abort(c, http.StatusForbidden, constraints.CodeInsufficientRole, "your role cannot access this resource")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, v1.ErrorBody{Message: message, Error: code})
}
