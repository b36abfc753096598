package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
)

// PrintJobDAO 打印任务数据访问对象
// 所有状态迁移都是条件更新：两个调度周期重叠时，一个任务只会被一方认领
type PrintJobDAO struct {
	db *gorm.DB
}

// NewPrintJobDAO 创建 PrintJobDAO 实例
func NewPrintJobDAO(db *gorm.DB) *PrintJobDAO {
	return &PrintJobDAO{db: db}
}

// Insert 插入打印任务
func (dao *PrintJobDAO) Insert(ctx context.Context, job *entity.PrintJob) error {
	if err := dao.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to insert print job: %w", err)
	}
	return nil
}

// ClaimPending 认领一批 Pending 任务（按创建时间先后）
// 逐行执行 PENDING→PRINTING 条件更新，RowsAffected=0 表示被并发周期抢走
func (dao *PrintJobDAO) ClaimPending(ctx context.Context, limit int) ([]entity.PrintJob, error) {
	var candidates []entity.PrintJob
	result := dao.db.WithContext(ctx).
		Where("status = ?", entity.JobStatusPending).
		Order("created_at asc").
		Limit(limit).
		Find(&candidates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", result.Error)
	}

	now := time.Now()
	claimed := make([]entity.PrintJob, 0, len(candidates))
	for _, job := range candidates {
		update := dao.db.WithContext(ctx).
			Model(&entity.PrintJob{}).
			Where("id = ? AND status = ?", job.ID, entity.JobStatusPending).
			Updates(map[string]interface{}{
				"status":     entity.JobStatusPrinting,
				"started_at": now,
			})
		if update.Error != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", job.ID, update.Error)
		}
		if update.RowsAffected == 0 {
			continue
		}
		job.Status = entity.JobStatusPrinting
		job.StartedAt = &now
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// ReleaseForRetry 尝试失败后释放回 Pending 并累计重试次数
func (dao *PrintJobDAO) ReleaseForRetry(ctx context.Context, id string, retryCount int, lastError string) error {
	result := dao.db.WithContext(ctx).
		Model(&entity.PrintJob{}).
		Where("id = ? AND status = ?", id, entity.JobStatusPrinting).
		Updates(map[string]interface{}{
			"status":      entity.JobStatusPending,
			"retry_count": retryCount,
			"last_error":  lastError,
			"started_at":  nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to release job for retry: %w", result.Error)
	}
	return nil
}

// MarkCompleted 标记完成
func (dao *PrintJobDAO) MarkCompleted(ctx context.Context, id string) error {
	result := dao.db.WithContext(ctx).
		Model(&entity.PrintJob{}).
		Where("id = ? AND status = ?", id, entity.JobStatusPrinting).
		Updates(map[string]interface{}{
			"status":       entity.JobStatusCompleted,
			"completed_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark job completed: %w", result.Error)
	}
	return nil
}

// MarkFailed 标记终态失败（重试耗尽）
func (dao *PrintJobDAO) MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error {
	result := dao.db.WithContext(ctx).
		Model(&entity.PrintJob{}).
		Where("id = ? AND status = ?", id, entity.JobStatusPrinting).
		Updates(map[string]interface{}{
			"status":       entity.JobStatusFailed,
			"retry_count":  retryCount,
			"last_error":   lastError,
			"completed_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark job failed: %w", result.Error)
	}
	return nil
}

// ReclaimStale 回收异常退出遗留的 PRINTING 任务
// 上次进程被强杀时任务停留在 PRINTING，重启后按持久化状态重新派发
func (dao *PrintJobDAO) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := dao.db.WithContext(ctx).
		Model(&entity.PrintJob{}).
		Where("status = ? AND started_at < ?", entity.JobStatusPrinting, cutoff).
		Updates(map[string]interface{}{
			"status":     entity.JobStatusPending,
			"started_at": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetByID 根据 ID 获取任务
func (dao *PrintJobDAO) GetByID(ctx context.Context, id string) (*entity.PrintJob, error) {
	var job entity.PrintJob
	result := dao.db.WithContext(ctx).Where("id = ?", id).First(&job)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get print job: %w", result.Error)
	}
	return &job, nil
}

// ListByOrder 获取订单关联的全部任务
func (dao *PrintJobDAO) ListByOrder(ctx context.Context, orderID string) ([]entity.PrintJob, error) {
	var jobs []entity.PrintJob
	result := dao.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", result.Error)
	}
	return jobs, nil
}
