package middleware

import (
	"net/http"
	"strings"

	"weddingdesk/internal/service"
	"weddingdesk/pkg/constraints"

	"github.com/gin-gonic/gin"
)

type TokenParser interface {
	ParseAccessToken(token string) (*service.UserClaims, error)
}

// JWTMiddleware authenticates the bearer access token and stores the caller
// in the request context. Every failure is a 401 so clients can tell an
// expired session from a permission problem.
func JWTMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			tokenString = strings.TrimSpace(token)
		}

		if tokenString == "" {
			abort(c, http.StatusUnauthorized, constraints.CodeUnauthorized, "authorization header missing")
			return
		}

		claims, err := parser.ParseAccessToken(tokenString)
		if err != nil {
			abort(c, http.StatusUnauthorized, constraints.CodeUnauthorized, "invalid or expired access token")
			return
		}

		ctx := service.WithOperator(c.Request.Context(), &service.OperatorInfo{
			UserID: claims.UserID,
			Name:   claims.Username,
			Role:   claims.Role,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
