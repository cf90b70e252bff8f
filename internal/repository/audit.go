package repository

import (
	"context"

	"weddingdesk/internal/model"

	"gorm.io/gorm"
)

type AuditInterface interface {
	Create(ctx context.Context, audit *model.AuthAudit) error
	// List returns newest first; an empty userID lists every user.
	List(ctx context.Context, userID string, offset, limit int) ([]model.AuthAudit, int64, error)
}

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, audit *model.AuthAudit) error {
	return r.db.WithContext(ctx).Create(audit).Error
}

func (r *AuditRepository) List(ctx context.Context, userID string, offset, limit int) ([]model.AuthAudit, int64, error) {
	var audits []model.AuthAudit
	var total int64

	db := r.db.WithContext(ctx).Model(&model.AuthAudit{})
	if userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Offset(offset).Limit(limit).Order("id DESC").Find(&audits).Error; err != nil {
		return nil, 0, err
	}
	return audits, total, nil
}
