package entity

import "time"

// PrintJob 打印任务
// 入队时路由已定格（printer_id 不随重试重新解析）；
// retry_count 到达 max_retries 后进入终态 FAILED，不再自动重试
type PrintJob struct {
	ID           string `gorm:"column:id;primaryKey;type:varchar(64)"`
	PrinterID    string `gorm:"column:printer_id;type:varchar(64);not null;index:idx_job_printer"`
	OrderID      string `gorm:"column:order_id;type:varchar(64);index:idx_job_order"`
	CloudOrderID string `gorm:"column:cloud_order_id;type:varchar(128)"`

	JobType string `gorm:"column:job_type;type:varchar(16);not null"`
	Payload []byte `gorm:"column:payload;type:mediumblob;not null"`

	Status     string `gorm:"column:status;type:varchar(16);not null;default:'PENDING';index:idx_job_status"`
	RetryCount int    `gorm:"column:retry_count;not null;default:0"`
	MaxRetries int    `gorm:"column:max_retries;not null;default:5"`
	LastError  string `gorm:"column:last_error;type:varchar(512)"`

	CreatedAt   time.Time  `gorm:"column:created_at;not null;index:idx_job_created"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

// TableName 指定表名
func (PrintJob) TableName() string {
	return "print_jobs"
}

// 打印任务状态常量
const (
	JobStatusPending   = "PENDING"
	JobStatusPrinting  = "PRINTING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// 打印任务类型常量
const (
	JobTypeReceipt       = "RECEIPT"
	JobTypeKitchenTicket = "KITCHEN_TICKET"
	JobTypeTest          = "TEST"
	JobTypeCashDrawer    = "CASH_DRAWER"
)
