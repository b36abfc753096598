package entity

import "time"

// PendingAck 待上报回执
// 打印任务进入终态时创建（同一云端订单只保留一行），云端确认后删除；
// 回执重试没有次数上限，retry_count 仅用于观测
type PendingAck struct {
	ID           string `gorm:"column:id;primaryKey;type:varchar(64)"`
	CloudOrderID string `gorm:"column:cloud_order_id;type:varchar(128);not null;uniqueIndex:uk_ack_cloud_order"`
	Outcome      string `gorm:"column:outcome;type:varchar(16);not null"`
	Reason       string `gorm:"column:reason;type:varchar(512)"`
	DeviceID     string `gorm:"column:device_id;type:varchar(64);not null"`

	PrintedAt   *time.Time `gorm:"column:printed_at"`
	RetryCount  int        `gorm:"column:retry_count;not null;default:0"`
	LastRetryAt *time.Time `gorm:"column:last_retry_at"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (PendingAck) TableName() string {
	return "pending_acks"
}

// 回执结果常量
const (
	AckOutcomePrinted = "printed"
	AckOutcomeFailed  = "failed"
)
