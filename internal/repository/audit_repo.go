package repository

import (
	"context"

	"opsconsole/internal/model"

	"gorm.io/gorm"
)

// AuditFilter narrows the audit listing.
type AuditFilter struct {
	OrderID string
	Action  string
	Outcome string
	Page    int
	Limit   int
}

// AuditRepository defines data access for the operator action trail.
type AuditRepository interface {
	Log(ctx context.Context, entry *model.ActionAudit) error
	List(ctx context.Context, filter AuditFilter) ([]model.ActionAudit, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.ActionAudit) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]model.ActionAudit, int64, error) {
	var audits []model.ActionAudit
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.ActionAudit{})
	if filter.OrderID != "" {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("User").Order("created_at desc").
		Offset(offset).Limit(filter.Limit).Find(&audits).Error; err != nil {
		return nil, 0, err
	}

	return audits, total, nil
}
