package server

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
	"github.com/gqurishi/POS-in-NET-sub004/internal/printer"
	"github.com/gqurishi/POS-in-NET-sub004/internal/realtime"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/infra/mysql"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// PrinterReader 打印机读取
type PrinterReader interface {
	List(ctx context.Context) ([]entity.NetworkPrinter, error)
	GetByID(ctx context.Context, id string) (*entity.NetworkPrinter, error)
}

// OrderReader 订单读取
type OrderReader interface {
	GetByID(ctx context.Context, id string) (*entity.LocalOrder, error)
	ListItems(ctx context.Context, orderID string) ([]entity.OrderItem, error)
}

// JobWriter 打印任务写入与查询
type JobWriter interface {
	Insert(ctx context.Context, job *entity.PrintJob) error
	ListByOrder(ctx context.Context, orderID string) ([]entity.PrintJob, error)
}

// AckReader 回执积压只读视图（人工清理路径不在范围内，至少能看到积压）
type AckReader interface {
	List(ctx context.Context) ([]entity.PendingAck, error)
}

// OutboxAdmin 离线队列查询与取消
type OutboxAdmin interface {
	List(ctx context.Context, status string, limit int) ([]entity.OfflineQueueItem, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// Reprinter 人工重打入口
type Reprinter interface {
	Reprint(ctx context.Context, orderID string, jobType string) error
}

// ConnStater 推送通道连接状态读取
type ConnStater interface {
	State() realtime.State
}

// Handler 本地状态 API 处理器
// 面向店内运维工具的机器接口；屏幕/对话框展示逻辑不在这里
type Handler struct {
	printers  PrinterReader
	orders    OrderReader
	jobs      JobWriter
	acks      AckReader
	outbox    OutboxAdmin
	reprinter Reprinter
	logger    logger.Logger

	// ConnState 可选：配置了云端时指向推送通道监听器
	ConnState ConnStater
}

// NewHandler 创建处理器
func NewHandler(
	printers PrinterReader,
	orders OrderReader,
	jobs JobWriter,
	acks AckReader,
	outbox OutboxAdmin,
	reprinter Reprinter,
	log logger.Logger,
) *Handler {
	return &Handler{
		printers:  printers,
		orders:    orders,
		jobs:      jobs,
		acks:      acks,
		outbox:    outbox,
		reprinter: reprinter,
		logger:    log,
	}
}

// ListPrinters 列出打印机及其最近健康状态
// GET /api/v1/printers
func (h *Handler) ListPrinters(c *gin.Context) {
	printers, err := h.printers.List(c.Request.Context())
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, printers)
}

// TestPrint 发送测试页
// POST /api/v1/printers/:id/test
func (h *Handler) TestPrint(c *gin.Context) {
	id := c.Param("id")
	target, err := h.printers.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, mysql.ErrNotFound) {
			NotFound(c, "printer not found")
			return
		}
		InternalError(c, err.Error())
		return
	}

	renderer := printer.NewRenderer(target.PaperWidth)
	job := &entity.PrintJob{
		ID:         uuid.NewString(),
		PrinterID:  target.ID,
		JobType:    entity.JobTypeTest,
		Payload:    renderer.RenderTestPage(target),
		Status:     entity.JobStatusPending,
		MaxRetries: 1,
		CreatedAt:  time.Now(),
	}
	if err := h.jobs.Insert(c.Request.Context(), job); err != nil {
		InternalError(c, err.Error())
		return
	}

	Success(c, gin.H{"job_id": job.ID})
}

// OpenDrawer 发送钱箱脉冲
// POST /api/v1/printers/:id/drawer
func (h *Handler) OpenDrawer(c *gin.Context) {
	id := c.Param("id")
	target, err := h.printers.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, mysql.ErrNotFound) {
			NotFound(c, "printer not found")
			return
		}
		InternalError(c, err.Error())
		return
	}
	if target.Type != entity.PrinterTypeReceipt {
		BadRequest(c, "cash drawer requires a receipt printer")
		return
	}

	renderer := printer.NewRenderer(target.PaperWidth)
	job := &entity.PrintJob{
		ID:         uuid.NewString(),
		PrinterID:  target.ID,
		JobType:    entity.JobTypeCashDrawer,
		Payload:    renderer.RenderDrawerKick(),
		Status:     entity.JobStatusPending,
		MaxRetries: 1,
		CreatedAt:  time.Now(),
	}
	if err := h.jobs.Insert(c.Request.Context(), job); err != nil {
		InternalError(c, err.Error())
		return
	}

	Success(c, gin.H{"job_id": job.ID})
}

// GetOrder 查询订单详情
// GET /api/v1/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	order, err := h.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mysql.ErrNotFound) {
			NotFound(c, "order not found")
			return
		}
		InternalError(c, err.Error())
		return
	}

	items, err := h.orders.ListItems(ctx, id)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	jobs, err := h.jobs.ListByOrder(ctx, id)
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	Success(c, gin.H{
		"order": order,
		"items": items,
		"jobs":  jobs,
	})
}

// ReprintRequest 重打请求体
type ReprintRequest struct {
	JobType string `json:"job_type" binding:"omitempty,oneof=RECEIPT KITCHEN_TICKET"`
}

// Reprint 人工重打
// POST /api/v1/orders/:id/reprint
func (h *Handler) Reprint(c *gin.Context) {
	id := c.Param("id")

	// 空请求体等价于重打全部票据
	var req ReprintRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequestWithValidation(c, err)
		return
	}

	if err := h.reprinter.Reprint(c.Request.Context(), id, req.JobType); err != nil {
		if errors.Is(err, mysql.ErrNotFound) {
			NotFound(c, "order not found")
			return
		}
		h.logger.Errorf(c.Request.Context(), "[Server] Reprint failed: %v", err)
		InternalError(c, err.Error())
		return
	}

	Success(c, gin.H{"order_id": id})
}

// ListAcks 查看回执积压
// GET /api/v1/acks
func (h *Handler) ListAcks(c *gin.Context) {
	acks, err := h.acks.List(c.Request.Context())
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, acks)
}

// ListOutbox 查看离线队列
// GET /api/v1/outbox?status=PENDING
func (h *Handler) ListOutbox(c *gin.Context) {
	items, err := h.outbox.List(c.Request.Context(), c.Query("status"), 100)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, items)
}

// CancelOutbox 取消尚未发送的队列条目
// POST /api/v1/outbox/:id/cancel
func (h *Handler) CancelOutbox(c *gin.Context) {
	id := c.Param("id")
	ok, err := h.outbox.Cancel(c.Request.Context(), id)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	if !ok {
		NotFound(c, "item not found or already terminal")
		return
	}
	Success(c, gin.H{"id": id})
}
