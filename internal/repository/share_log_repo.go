package repository

import (
	"context"
	"time"

	"opsconsole/internal/model"

	"gorm.io/gorm"
)

// ShareStat is one aggregate row of the share trail.
type ShareStat struct {
	DocumentType string `json:"document_type"`
	Channel      string `json:"channel"`
	Count        int64  `json:"count"`
}

// ShareLogRepository defines data access for the document share trail.
type ShareLogRepository interface {
	Log(ctx context.Context, entry *model.ShareLog) error
	ListByOrder(ctx context.Context, orderID string, page, limit int) ([]model.ShareLog, int64, error)
	Statistics(ctx context.Context, from, to time.Time) ([]ShareStat, error)
}

type shareLogRepository struct {
	db *gorm.DB
}

func NewShareLogRepository(db *gorm.DB) ShareLogRepository {
	return &shareLogRepository{db: db}
}

func (r *shareLogRepository) Log(ctx context.Context, entry *model.ShareLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *shareLogRepository) ListByOrder(ctx context.Context, orderID string, page, limit int) ([]model.ShareLog, int64, error) {
	var logs []model.ShareLog
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.ShareLog{}).Where("order_id = ?", orderID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("User").Where("order_id = ?", orderID).
		Order("created_at desc").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

func (r *shareLogRepository) Statistics(ctx context.Context, from, to time.Time) ([]ShareStat, error) {
	var stats []ShareStat
	err := GetDB(ctx, r.db).Model(&model.ShareLog{}).
		Select("document_type, channel, count(*) as count").
		Where("created_at >= ? AND created_at < ?", from, to).
		Group("document_type, channel").
		Order("count desc").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}
