package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
)

// AckDAO 待上报回执数据访问对象
type AckDAO struct {
	db *gorm.DB
}

// NewAckDAO 创建 AckDAO 实例
func NewAckDAO(db *gorm.DB) *AckDAO {
	return &AckDAO{db: db}
}

// Insert 插入回执；同一云端订单最多一条回执。
// 已有回执时 printed 静默忽略（厨房票和小票都成功只报一次），
// failed 则覆盖已有的 printed——厨房票打出来但小票耗尽重试时，
// 云端要知道的是整单没打全，而不是先到的那条成功
func (dao *AckDAO) Insert(ctx context.Context, ack *entity.PendingAck) error {
	result := dao.db.WithContext(ctx).
		Clauses(ackConflictClause(ack)).
		Create(ack)
	if result.Error != nil {
		return fmt.Errorf("failed to insert pending ack: %w", result.Error)
	}
	return nil
}

// ackConflictClause 回执唯一键冲突策略：failed 升级已有行，其余忽略
func ackConflictClause(ack *entity.PendingAck) clause.OnConflict {
	if ack.Outcome == entity.AckOutcomeFailed {
		return clause.OnConflict{
			Columns: []clause.Column{{Name: "cloud_order_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"outcome":    entity.AckOutcomeFailed,
				"reason":     ack.Reason,
				"printed_at": nil,
			}),
		}
	}
	return clause.OnConflict{DoNothing: true}
}

// List 列出所有待上报回执（按创建时间先后）
func (dao *AckDAO) List(ctx context.Context) ([]entity.PendingAck, error) {
	var acks []entity.PendingAck
	result := dao.db.WithContext(ctx).Order("created_at asc").Find(&acks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list pending acks: %w", result.Error)
	}
	return acks, nil
}

// Delete 删除回执（云端确认后）
func (dao *AckDAO) Delete(ctx context.Context, id string) error {
	result := dao.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&entity.PendingAck{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete pending ack: %w", result.Error)
	}
	return nil
}

// BumpRetry 失败后累计重试次数并刷新 last_retry_at
func (dao *AckDAO) BumpRetry(ctx context.Context, id string) error {
	result := dao.db.WithContext(ctx).
		Model(&entity.PendingAck{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to bump ack retry: %w", result.Error)
	}
	return nil
}
