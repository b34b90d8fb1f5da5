package infrastructure

import "time"

// ItemModel 对应数据库中的 item 表
type ItemModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:128;uniqueIndex"`
	Kind      string `gorm:"size:64"`
	Price     int64
	Remain    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ItemModel) TableName() string {
	return "item"
}

// RecordModel 对应数据库中的 record 表（订单）。
// 终态订单不删除，保留用于审计。
type RecordModel struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	ItemID     uint64 `gorm:"index:idx_record_line,priority:1"`
	UserID     uint64 `gorm:"index:idx_record_line,priority:2;index:idx_record_user"`
	HomeID     uint64 `gorm:"index:idx_record_line,priority:3"`
	Status     string `gorm:"size:32;index:idx_record_line,priority:4;index:idx_record_status"`
	Num        int64
	PaidAmount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName 指定 GORM 应该使用的表名
func (RecordModel) TableName() string {
	return "record"
}
