package infrastructure

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// AutoMigrate 创建或更新 item / record 表
func AutoMigrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(&ItemModel{}, &RecordModel{}), "migrate sale tables")
}
