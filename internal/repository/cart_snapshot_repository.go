package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/joya-checkout/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartSnapshotRepository 购物车快照数据访问接口
type CartSnapshotRepository interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

// GormCartSnapshotRepository GORM 实现（sqlite / postgres）
type GormCartSnapshotRepository struct {
	db *gorm.DB
}

// NewCartSnapshotRepository 创建快照仓库
func NewCartSnapshotRepository(db *gorm.DB) *GormCartSnapshotRepository {
	return &GormCartSnapshotRepository{db: db}
}

// Load 读取快照，不存在时返回 nil
func (r *GormCartSnapshotRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var record models.CartSnapshotRecord
	err := r.db.WithContext(ctx).Where("storage_key = ?", strings.TrimSpace(key)).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(record.Payload), nil
}

// Save 写入快照（按 key 覆盖）
func (r *GormCartSnapshotRepository) Save(ctx context.Context, key string, payload []byte) error {
	record := models.CartSnapshotRecord{
		Key:       strings.TrimSpace(key),
		Payload:   string(payload),
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&record).Error
}

// Delete 删除快照
func (r *GormCartSnapshotRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("storage_key = ?", strings.TrimSpace(key)).Delete(&models.CartSnapshotRecord{}).Error
}
