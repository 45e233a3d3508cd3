package models

import "time"

// CartSnapshotRecord 购物车快照存储记录
type CartSnapshotRecord struct {
	Key       string    `gorm:"column:storage_key;primaryKey;type:varchar(128)" json:"key"` // 存储键
	Payload   string    `gorm:"type:text;not null" json:"payload"`                          // 快照 JSON
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (CartSnapshotRecord) TableName() string {
	return "cart_snapshots"
}
