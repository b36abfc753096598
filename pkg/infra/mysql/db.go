package mysql

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
)

// Open 建立数据库连接
// TranslateError 开启后，唯一索引冲突统一转换为 gorm.ErrDuplicatedKey
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate 建表/更新表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.LocalOrder{},
		&entity.OrderItem{},
		&entity.ItemAddon{},
		&entity.PrintJob{},
		&entity.NetworkPrinter{},
		&entity.PendingAck{},
		&entity.OfflineQueueItem{},
	)
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
