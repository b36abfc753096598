package entity

import (
	"time"

	"gorm.io/datatypes"
)

// OfflineQueueItem 离线操作队列条目（通用持久化 outbox）
// 任何无法立即完成的出站调用都落到这里，由 flush 循环按优先级重放
type OfflineQueueItem struct {
	ID            string         `gorm:"column:id;primaryKey;type:varchar(64)"`
	OperationType string         `gorm:"column:operation_type;type:varchar(64);not null"`
	Endpoint      string         `gorm:"column:endpoint;type:varchar(512);not null"`
	Method        string         `gorm:"column:method;type:varchar(8);not null"`
	Payload       datatypes.JSON `gorm:"column:payload;type:json"`
	Headers       datatypes.JSON `gorm:"column:headers;type:json"`

	// 1 最高，10 最低
	Priority int    `gorm:"column:priority;not null;default:5;index:idx_queue_priority"`
	Status   string `gorm:"column:status;type:varchar(16);not null;default:'PENDING';index:idx_queue_status"`

	RetryCount    int        `gorm:"column:retry_count;not null;default:0"`
	MaxRetries    int        `gorm:"column:max_retries;not null;default:3"`
	LastAttemptAt *time.Time `gorm:"column:last_attempt_at"`
	LastError     string     `gorm:"column:last_error;type:varchar(512)"`

	// 发送成功后的响应记录（payload 保留用于审计）
	SentAt       *time.Time `gorm:"column:sent_at"`
	ResponseCode int        `gorm:"column:response_code"`
	ResponseBody string     `gorm:"column:response_body;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_queue_created"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (OfflineQueueItem) TableName() string {
	return "offline_queue"
}

// 队列条目状态常量
const (
	QueueStatusPending    = "PENDING"
	QueueStatusProcessing = "PROCESSING"
	QueueStatusSent       = "SENT"
	QueueStatusFailed     = "FAILED"
	QueueStatusCancelled  = "CANCELLED"
)

// 常见操作类型常量
const (
	OpTypeOrderAck     = "ORDER_ACK"
	OpTypeStatusUpdate = "STATUS_UPDATE"
	OpTypeLoyaltyWrite = "LOYALTY_WRITE"
	OpTypeGiftCard     = "GIFT_CARD_WRITE"
)
