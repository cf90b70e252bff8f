package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"weddingdesk/internal/service"
	"weddingdesk/pkg/constraints"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeParser map[string]*service.UserClaims

func (f fakeParser) ParseAccessToken(token string) (*service.UserClaims, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	parser := fakeParser{
		"admin-token": {UserID: "u-1", Username: "mai", Role: constraints.RoleAdmin},
		"staff-token": {UserID: "u-2", Username: "lan", Role: constraints.RoleStaff},
	}
	r := gin.New()
	r.Use(JWTMiddleware(parser))
	r.GET("/me", func(c *gin.Context) {
		op := service.GetOperatorInfo(c.Request.Context())
		c.String(http.StatusOK, op.UserID)
	})
	r.GET("/admin", RequireRole(constraints.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	r := protectedRouter()

	tests := []struct {
		name   string
		path   string
		header string
		want   int
		body   string
	}{
		{"valid token", "/me", "Bearer admin-token", http.StatusOK, "u-1"},
		{"lowercase scheme", "/me", "bearer staff-token", http.StatusOK, "u-2"},
		{"missing header", "/me", "", http.StatusUnauthorized, constraints.CodeUnauthorized},
		{"wrong scheme", "/me", "Basic admin-token", http.StatusUnauthorized, constraints.CodeUnauthorized},
		{"unknown token", "/me", "Bearer expired", http.StatusUnauthorized, constraints.CodeUnauthorized},
		{"role allowed", "/admin", "Bearer admin-token", http.StatusOK, ""},
		{"role denied", "/admin", "Bearer staff-token", http.StatusForbidden, constraints.CodeInsufficientRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}
