package service

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	ErrMysqlUnhealthy = errors.New("mysql unhealthy")
	ErrRedisUnhealthy = errors.New("redis unhealthy")
)

// HealthService pings the backing stores. A nil redis client is skipped.
type HealthService struct {
	db  *gorm.DB
	rdb redis.UniversalClient
}

func NewHealthService(db *gorm.DB, rdb redis.UniversalClient) *HealthService {
	return &HealthService{db: db, rdb: rdb}
}

func (s *HealthService) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		return ErrMysqlUnhealthy
	}
	if s.rdb != nil && s.rdb.Ping(ctx).Err() != nil {
		return ErrRedisUnhealthy
	}
	return nil
}
