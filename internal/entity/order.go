package entity

import (
	"time"

	"gorm.io/datatypes"
)

// LocalOrder 本地订单实体（云端订单翻译后的规范表示）
// cloud_order_id 上的唯一索引是双通道去重的唯一权威依据
type LocalOrder struct {
	ID           string `gorm:"column:id;primaryKey;type:varchar(64)"`
	CloudOrderID string `gorm:"column:cloud_order_id;type:varchar(128);not null;uniqueIndex:uk_cloud_order"`
	OrderNo      string `gorm:"column:order_no;type:varchar(64);not null;index:idx_order_no"`

	// 客户信息
	CustomerName  string `gorm:"column:customer_name;type:varchar(128)"`
	CustomerPhone string `gorm:"column:customer_phone;type:varchar(32)"`

	// 订单类型与金额
	OrderType string  `gorm:"column:order_type;type:varchar(16);not null"`
	Subtotal  float64 `gorm:"column:subtotal;type:decimal(10,2);not null;default:0"`
	Tax       float64 `gorm:"column:tax;type:decimal(10,2);not null;default:0"`
	Discount  float64 `gorm:"column:discount;type:decimal(10,2);not null;default:0"`
	Total     float64 `gorm:"column:total;type:decimal(10,2);not null;default:0"`

	// 支付
	PaymentMethod string `gorm:"column:payment_method;type:varchar(32)"`
	PaymentStatus string `gorm:"column:payment_status;type:varchar(32)"`

	// 生命周期状态与同步状态
	Status     string `gorm:"column:status;type:varchar(16);not null;default:'NEW';index:idx_status"`
	SyncStatus string `gorm:"column:sync_status;type:varchar(16);not null;default:'SYNCED'"`

	// 原始云端报文（审计用）
	RawData datatypes.JSON `gorm:"column:raw_data;type:json"`

	CloudCreatedAt time.Time `gorm:"column:cloud_created_at"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index:idx_created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (LocalOrder) TableName() string {
	return "orders"
}

// 订单生命周期状态常量
const (
	OrderStatusNew        = "NEW"
	OrderStatusKitchen    = "KITCHEN"
	OrderStatusPreparing  = "PREPARING"
	OrderStatusReady      = "READY"
	OrderStatusDelivering = "DELIVERING"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
)

// 同步状态常量
const (
	SyncStatusSynced   = "SYNCED"
	SyncStatusPending  = "PENDING"
	SyncStatusFailed   = "FAILED"
	SyncStatusConflict = "CONFLICT"
)

// 订单类型常量
const (
	OrderTypePickup   = "PICKUP"
	OrderTypeDelivery = "DELIVERY"
	OrderTypeDineIn   = "DINE_IN"
)

// OrderItem 订单行项目
type OrderItem struct {
	ID         string  `gorm:"column:id;primaryKey;type:varchar(64)"`
	OrderID    string  `gorm:"column:order_id;type:varchar(64);not null;index:idx_item_order"`
	Name       string  `gorm:"column:name;type:varchar(255);not null"`
	Quantity   int     `gorm:"column:quantity;not null;default:1"`
	UnitPrice  float64 `gorm:"column:unit_price;type:decimal(10,2);not null;default:0"`
	Note       string  `gorm:"column:note;type:varchar(512)"`
	PrintGroup string  `gorm:"column:print_group;type:varchar(64)"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}

// ItemAddon 行项目附加项（配料、规格等）
type ItemAddon struct {
	ID       string  `gorm:"column:id;primaryKey;type:varchar(64)"`
	ItemID   string  `gorm:"column:item_id;type:varchar(64);not null;index:idx_addon_item"`
	Name     string  `gorm:"column:name;type:varchar(255);not null"`
	Price    float64 `gorm:"column:price;type:decimal(10,2);not null;default:0"`
	Quantity int     `gorm:"column:quantity;not null;default:1"`
}

// TableName 指定表名
func (ItemAddon) TableName() string {
	return "order_item_addons"
}
