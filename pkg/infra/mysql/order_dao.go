package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
)

// 哨兵错误
var (
	// ErrDuplicate 唯一索引冲突（双通道同时写入同一订单）
	ErrDuplicate = errors.New("duplicate row")
	// ErrNotFound 行不存在
	ErrNotFound = errors.New("row not found")
)

// OrderDAO 订单数据访问对象
type OrderDAO struct {
	db *gorm.DB
}

// NewOrderDAO 创建 OrderDAO 实例
func NewOrderDAO(db *gorm.DB) *OrderDAO {
	return &OrderDAO{db: db}
}

// ExistsByCloudID 检查云端订单 ID 是否已摄入
func (dao *OrderDAO) ExistsByCloudID(ctx context.Context, cloudOrderID string) (bool, error) {
	var count int64
	result := dao.db.WithContext(ctx).
		Model(&entity.LocalOrder{}).
		Where("cloud_order_id = ?", cloudOrderID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check order existence: %w", result.Error)
	}
	return count > 0, nil
}

// Insert 在单个事务内写入订单、行项目与附加项
// 唯一索引冲突返回 ErrDuplicate，调用方据此判定重复摄入
func (dao *OrderDAO) Insert(
	ctx context.Context,
	order *entity.LocalOrder,
	items []entity.OrderItem,
	addons []entity.ItemAddon,
) error {
	err := dao.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		if len(addons) > 0 {
			if err := tx.Create(&addons).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetByID 根据本地 ID 获取订单
func (dao *OrderDAO) GetByID(ctx context.Context, id string) (*entity.LocalOrder, error) {
	var order entity.LocalOrder
	result := dao.db.WithContext(ctx).Where("id = ?", id).First(&order)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", result.Error)
	}
	return &order, nil
}

// GetByCloudID 根据云端订单 ID 获取订单
func (dao *OrderDAO) GetByCloudID(ctx context.Context, cloudOrderID string) (*entity.LocalOrder, error) {
	var order entity.LocalOrder
	result := dao.db.WithContext(ctx).Where("cloud_order_id = ?", cloudOrderID).First(&order)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", result.Error)
	}
	return &order, nil
}

// ListItems 获取订单行项目
func (dao *OrderDAO) ListItems(ctx context.Context, orderID string) ([]entity.OrderItem, error) {
	var items []entity.OrderItem
	result := dao.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list order items: %w", result.Error)
	}
	return items, nil
}

// ListAddons 获取行项目附加项
func (dao *OrderDAO) ListAddons(ctx context.Context, itemIDs []string) ([]entity.ItemAddon, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	var addons []entity.ItemAddon
	result := dao.db.WithContext(ctx).
		Where("item_id IN ?", itemIDs).
		Find(&addons)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list addons: %w", result.Error)
	}
	return addons, nil
}

// UpdateStatus 条件状态迁移（from 状态不匹配时不生效）
func (dao *OrderDAO) UpdateStatus(ctx context.Context, id, from, to string) (bool, error) {
	result := dao.db.WithContext(ctx).
		Model(&entity.LocalOrder{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update order status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
