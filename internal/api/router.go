package api

import (
	"net/http"

	"weddingdesk/internal/metrics"
	"weddingdesk/internal/middleware"
	"weddingdesk/pkg/constraints"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Auth   *AuthHandler
	Parser middleware.TokenParser
	// AllowedRoles re-checks the role on every authenticated request so a
	// role removed after sign-in loses access before its token expires.
	AllowedRoles []string
	Health HealthChecker

	// RateLimiter backs the login limiter; nil limits in process only.
	RateLimiter       redis.Scripter
	RequestsPerSecond int

	HTTPObserver metrics.HTTPObserver
	Metrics      http.Handler
	CorsOrigins  []string
}

func RegisterRoutes(d RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.CorsMiddleware(d.CorsOrigins...),
		middleware.RequestID(),
		middleware.TraceMiddleware(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
	)
	if d.HTTPObserver != nil {
		r.Use(middleware.HttpMiddleware(d.HTTPObserver))
	}
	_ = r.SetTrustedProxies(nil)

	r.GET("/health", HealthCheck(d.Health))
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	loginLimiter := middleware.RateLimitMiddleware(d.RateLimiter, d.RequestsPerSecond, "login")

	auth := r.Group("/auth")
	{
		auth.POST("/login", loginLimiter, d.Auth.Login)
		auth.POST("/refresh-token", d.Auth.Refresh)
		auth.POST("/logout", d.Auth.Logout)
	}

	account := r.Group("/auth")
	account.Use(middleware.JWTMiddleware(d.Parser))
	if len(d.AllowedRoles) > 0 {
		account.Use(middleware.RequireRole(d.AllowedRoles...))
	}
	{
		account.GET("/me", d.Auth.GetProfile)
		account.PUT("/me", d.Auth.UpdateProfile)
		account.POST("/change-password", d.Auth.ChangePassword)
	}

	admin := r.Group("/auth/audits")
	admin.Use(middleware.JWTMiddleware(d.Parser), middleware.RequireRole(constraints.RoleAdmin))
	{
		admin.GET("", d.Auth.ListAudits)
	}
	return r
}
