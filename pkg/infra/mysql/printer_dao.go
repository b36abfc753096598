package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
)

// PrinterDAO 打印机数据访问对象
type PrinterDAO struct {
	db *gorm.DB
}

// NewPrinterDAO 创建 PrinterDAO 实例
func NewPrinterDAO(db *gorm.DB) *PrinterDAO {
	return &PrinterDAO{db: db}
}

// Sync 将配置中的打印机注册表同步到库里（按 ID upsert，保留在线状态）
func (dao *PrinterDAO) Sync(ctx context.Context, printers []entity.NetworkPrinter) error {
	if len(printers) == 0 {
		return nil
	}
	result := dao.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "address", "port", "brand", "paper_width", "type", "print_group", "updated_at",
		}),
	}).Create(&printers)
	if result.Error != nil {
		return fmt.Errorf("failed to sync printers: %w", result.Error)
	}
	return nil
}

// List 列出全部打印机
func (dao *PrinterDAO) List(ctx context.Context) ([]entity.NetworkPrinter, error) {
	var printers []entity.NetworkPrinter
	result := dao.db.WithContext(ctx).Order("name asc").Find(&printers)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list printers: %w", result.Error)
	}
	return printers, nil
}

// GetByID 根据 ID 获取打印机
func (dao *PrinterDAO) GetByID(ctx context.Context, id string) (*entity.NetworkPrinter, error) {
	var printer entity.NetworkPrinter
	result := dao.db.WithContext(ctx).Where("id = ?", id).First(&printer)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get printer: %w", result.Error)
	}
	return &printer, nil
}

// GetByPrintGroup 根据打印分组获取打印机
func (dao *PrinterDAO) GetByPrintGroup(ctx context.Context, group string) (*entity.NetworkPrinter, error) {
	var printer entity.NetworkPrinter
	result := dao.db.WithContext(ctx).Where("print_group = ?", group).First(&printer)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get printer by group: %w", result.Error)
	}
	return &printer, nil
}

// GetByType 根据打印机类型获取打印机（如小票机）
func (dao *PrinterDAO) GetByType(ctx context.Context, printerType string) (*entity.NetworkPrinter, error) {
	var printer entity.NetworkPrinter
	result := dao.db.WithContext(ctx).Where("type = ?", printerType).First(&printer)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get printer by type: %w", result.Error)
	}
	return &printer, nil
}

// SetOnline 更新在线状态；在线时刷新 last_seen_at
func (dao *PrinterDAO) SetOnline(ctx context.Context, id string, online bool) error {
	updates := map[string]interface{}{
		"online": online,
	}
	if online {
		updates["last_seen_at"] = time.Now()
	}
	result := dao.db.WithContext(ctx).
		Model(&entity.NetworkPrinter{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update printer status: %w", result.Error)
	}
	return nil
}
