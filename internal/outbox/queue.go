package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
	"github.com/gqurishi/POS-in-NET-sub004/internal/model"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// Store 队列存储操作
type Store interface {
	Insert(ctx context.Context, item *entity.OfflineQueueItem) error
	SelectRetryable(ctx context.Context, limit int) ([]entity.OfflineQueueItem, error)
	Claim(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string, responseCode int, responseBody string) error
	ReleaseForRetry(ctx context.Context, id string, retryCount int, lastError string) error
	MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error
}

// Operation 入队参数
type Operation struct {
	Type       string
	Endpoint   string
	Method     string
	Payload    []byte
	Headers    map[string]string
	Priority   int
	MaxRetries int
}

// 回执操作走高优先级
const ackPriority = 2

// Queue 离线操作队列（通用持久化 outbox）
// 任何必须送达云端但此刻无法完成的出站调用都从这里走：
// 入队即返回，调用方永远不用阻塞等网络恢复
type Queue struct {
	store             Store
	defaultMaxRetries int
	logger            logger.Logger
}

// NewQueue 创建队列
func NewQueue(store Store, defaultMaxRetries int, log logger.Logger) *Queue {
	return &Queue{
		store:             store,
		defaultMaxRetries: defaultMaxRetries,
		logger:            log,
	}
}

// Enqueue 记录一次待执行的出站操作
func (q *Queue) Enqueue(ctx context.Context, op Operation) (string, error) {
	if op.Method == "" {
		op.Method = http.MethodPost
	}
	if op.Priority < 1 || op.Priority > 10 {
		op.Priority = 5
	}
	if op.MaxRetries <= 0 {
		op.MaxRetries = q.defaultMaxRetries
	}

	now := time.Now()
	item := &entity.OfflineQueueItem{
		ID:            uuid.NewString(),
		OperationType: op.Type,
		Endpoint:      op.Endpoint,
		Method:        op.Method,
		Payload:       datatypes.JSON(op.Payload),
		Priority:      op.Priority,
		Status:        entity.QueueStatusPending,
		MaxRetries:    op.MaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if len(op.Headers) > 0 {
		if raw, err := json.Marshal(op.Headers); err == nil {
			item.Headers = datatypes.JSON(raw)
		}
	}

	if err := q.store.Insert(ctx, item); err != nil {
		return "", fmt.Errorf("enqueue operation: %w", err)
	}

	q.logger.Infof(ctx, "[Outbox] Operation enqueued: %s %s (%s)", item.Method, item.Endpoint, item.OperationType)
	return item.ID, nil
}

// EnqueueOrderAck 回执专用入口（回执重试服务在网络不可达时调用）
func (q *Queue) EnqueueOrderAck(ctx context.Context, ackReq model.OrderAckRequest) error {
	payload, err := json.Marshal(ackReq)
	if err != nil {
		return fmt.Errorf("marshal ack payload: %w", err)
	}

	_, err = q.Enqueue(ctx, Operation{
		Type:     entity.OpTypeOrderAck,
		Endpoint: "/order-ack",
		Method:   http.MethodPost,
		Payload:  payload,
		Priority: ackPriority,
	})
	return err
}
