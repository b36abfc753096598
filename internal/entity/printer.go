package entity

import (
	"fmt"
	"time"
)

// NetworkPrinter 网络打印机
// 配置（名称、地址、分组）由外部管理；本系统只读取配置并维护在线状态
type NetworkPrinter struct {
	ID         string `gorm:"column:id;primaryKey;type:varchar(64)"`
	Name       string `gorm:"column:name;type:varchar(128);not null"`
	Address    string `gorm:"column:address;type:varchar(128);not null"`
	Port       int    `gorm:"column:port;not null;default:9100"`
	Brand      string `gorm:"column:brand;type:varchar(32)"`
	PaperWidth int    `gorm:"column:paper_width;not null;default:80"`
	Type       string `gorm:"column:type;type:varchar(16);not null"`
	PrintGroup string `gorm:"column:print_group;type:varchar(64);index:idx_printer_group"`

	Online     bool       `gorm:"column:online;not null;default:false"`
	LastSeenAt *time.Time `gorm:"column:last_seen_at"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (NetworkPrinter) TableName() string {
	return "network_printers"
}

// 打印机类型常量
const (
	PrinterTypeReceipt = "RECEIPT"
	PrinterTypeKitchen = "KITCHEN"
	PrinterTypeLabel   = "LABEL"
)

// 常见打印机品牌常量
const (
	PrinterBrandEpson   = "EPSON"
	PrinterBrandStar    = "STAR"
	PrinterBrandGeneric = "GENERIC"
)

// Addr 返回 host:port 形式的地址
func (p *NetworkPrinter) Addr() string {
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}
