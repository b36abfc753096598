package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
)

// OutboxDAO 离线操作队列数据访问对象
type OutboxDAO struct {
	db *gorm.DB
}

// NewOutboxDAO 创建 OutboxDAO 实例
func NewOutboxDAO(db *gorm.DB) *OutboxDAO {
	return &OutboxDAO{db: db}
}

// Insert 插入队列条目
func (dao *OutboxDAO) Insert(ctx context.Context, item *entity.OfflineQueueItem) error {
	if err := dao.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to insert queue item: %w", err)
	}
	return nil
}

// SelectRetryable 选取可发送条目：Pending 状态，按优先级（1 最高）再按创建时间排序
// 终态（SENT/FAILED/CANCELLED）不会出现在结果中
func (dao *OutboxDAO) SelectRetryable(ctx context.Context, limit int) ([]entity.OfflineQueueItem, error) {
	var items []entity.OfflineQueueItem
	result := dao.db.WithContext(ctx).
		Where("status = ?", entity.QueueStatusPending).
		Order("priority asc").
		Order("created_at asc").
		Limit(limit).
		Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to select queue items: %w", result.Error)
	}
	return items, nil
}

// Claim 条件认领 PENDING→PROCESSING；返回 false 表示被并发周期抢走
func (dao *OutboxDAO) Claim(ctx context.Context, id string) (bool, error) {
	result := dao.db.WithContext(ctx).
		Model(&entity.OfflineQueueItem{}).
		Where("id = ? AND status = ?", id, entity.QueueStatusPending).
		Updates(map[string]interface{}{
			"status":          entity.QueueStatusProcessing,
			"last_attempt_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim queue item: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkSent 标记发送成功，记录响应（payload 保留用于审计）
func (dao *OutboxDAO) MarkSent(ctx context.Context, id string, responseCode int, responseBody string) error {
	result := dao.db.WithContext(ctx).
		Model(&entity.OfflineQueueItem{}).
		Where("id = ? AND status = ?", id, entity.QueueStatusProcessing).
		Updates(map[string]interface{}{
			"status":        entity.QueueStatusSent,
			"sent_at":       time.Now(),
			"response_code": responseCode,
			"response_body": responseBody,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark queue item sent: %w", result.Error)
	}
	return nil
}

// ReleaseForRetry 发送失败，释放回 Pending 等下一轮 flush
func (dao *OutboxDAO) ReleaseForRetry(ctx context.Context, id string, retryCount int, lastError string) error {
	result := dao.db.WithContext(ctx).
		Model(&entity.OfflineQueueItem{}).
		Where("id = ? AND status = ?", id, entity.QueueStatusProcessing).
		Updates(map[string]interface{}{
			"status":      entity.QueueStatusPending,
			"retry_count": retryCount,
			"last_error":  lastError,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to release queue item: %w", result.Error)
	}
	return nil
}

// MarkFailed 标记终态失败（重试耗尽，需人工介入）
func (dao *OutboxDAO) MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error {
	result := dao.db.WithContext(ctx).
		Model(&entity.OfflineQueueItem{}).
		Where("id = ? AND status = ?", id, entity.QueueStatusProcessing).
		Updates(map[string]interface{}{
			"status":      entity.QueueStatusFailed,
			"retry_count": retryCount,
			"last_error":  lastError,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark queue item failed: %w", result.Error)
	}
	return nil
}

// Cancel 取消尚未发送的条目
func (dao *OutboxDAO) Cancel(ctx context.Context, id string) (bool, error) {
	result := dao.db.WithContext(ctx).
		Model(&entity.OfflineQueueItem{}).
		Where("id = ? AND status = ?", id, entity.QueueStatusPending).
		Update("status", entity.QueueStatusCancelled)
	if result.Error != nil {
		return false, fmt.Errorf("failed to cancel queue item: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// List 列出队列条目（状态可选过滤，本地 API 用）
func (dao *OutboxDAO) List(ctx context.Context, status string, limit int) ([]entity.OfflineQueueItem, error) {
	query := dao.db.WithContext(ctx).Model(&entity.OfflineQueueItem{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var items []entity.OfflineQueueItem
	result := query.Order("created_at desc").Limit(limit).Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", result.Error)
	}
	return items, nil
}
