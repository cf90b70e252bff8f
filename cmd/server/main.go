package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weddingdesk/internal/api"
	"weddingdesk/internal/config"
	"weddingdesk/internal/metrics"
	"weddingdesk/internal/model"
	"weddingdesk/internal/repository"
	"weddingdesk/internal/service"
	"weddingdesk/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if cfg.Auth.SigningKey == "" {
		return errors.New("auth.signing_key is required (WEDDESK_AUTH_SIGNING_KEY)")
	}

	db, err := initDB(cfg.MySQL)
	if err != nil {
		return err
	}

	// Without Redis the refresh allow-list and rate limits live in process,
	// which only suits a single replica.
	var (
		tokens  repository.RefreshTokenStore = repository.NewMemoryRefreshStore()
		limiter redis.Scripter
		rdb     *redis.Client
	)
	if cfg.Redis.Addr != "" {
		rdb, err = initRedis(cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		tokens = repository.NewRedisRefreshStore(rdb)
		limiter = rdb
	} else {
		logger.Warn("redis not configured, using in-process refresh token store")
	}

	users := repository.NewUserRepository(db)
	authSvc, err := service.NewAuthService(users, tokens, service.AuthConfig{
		SigningKey:      []byte(cfg.Auth.SigningKey),
		Issuer:          cfg.Auth.Issuer,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
		AllowedRoles:    cfg.Auth.AllowedRoles,
	})
	if err != nil {
		return err
	}

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_, err = authSvc.SeedAdmin(seedCtx, cfg.Auth.SeedAdminUsername, cfg.Auth.SeedAdminEmail, cfg.Auth.SeedAdminPassword)
	seedCancel()
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	var healthRedis redis.UniversalClient
	if rdb != nil {
		healthRedis = rdb
	}
	health := service.NewHealthService(db, healthRedis)

	r := api.RegisterRoutes(api.RouterDeps{
		Auth:              api.NewAuthHandler(authSvc, repository.NewAuditRepository(db)),
		Parser:            authSvc,
		AllowedRoles:      cfg.Auth.AllowedRoles,
		Health:            health,
		RateLimiter:       limiter,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		HTTPObserver:      metrics.NewHTTPObserver(nil),
		Metrics:           metrics.Handler(),
		CorsOrigins:       cfg.Server.CorsOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("mysql.dsn is required (WEDDESK_MYSQL_DSN)")
	}
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.AuthAudit{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}
