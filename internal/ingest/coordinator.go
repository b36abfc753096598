package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
	"github.com/gqurishi/POS-in-NET-sub004/internal/model"
	"github.com/gqurishi/POS-in-NET-sub004/internal/printer"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/infra/mysql"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// ResultCode 摄入结果码
type ResultCode int

const (
	// Created 新订单已落库并生成打印任务
	Created ResultCode = iota
	// Duplicate 订单已见过，幂等空操作
	Duplicate
	// Rejected 结构校验失败，丢弃（来源通道会自然重投）
	Rejected
)

// Outcome 摄入结果
type Outcome struct {
	Code    ResultCode
	OrderID string
	Reason  string
}

// OrderStore 协调器需要的订单存储操作
type OrderStore interface {
	ExistsByCloudID(ctx context.Context, cloudOrderID string) (bool, error)
	Insert(ctx context.Context, order *entity.LocalOrder, items []entity.OrderItem, addons []entity.ItemAddon) error
	GetByID(ctx context.Context, id string) (*entity.LocalOrder, error)
	GetByCloudID(ctx context.Context, cloudOrderID string) (*entity.LocalOrder, error)
	ListItems(ctx context.Context, orderID string) ([]entity.OrderItem, error)
	ListAddons(ctx context.Context, itemIDs []string) ([]entity.ItemAddon, error)
}

// JobStore 打印任务写入
type JobStore interface {
	Insert(ctx context.Context, job *entity.PrintJob) error
}

// PrinterResolver 打印目的地解析
type PrinterResolver interface {
	GetByPrintGroup(ctx context.Context, group string) (*entity.NetworkPrinter, error)
	GetByType(ctx context.Context, printerType string) (*entity.NetworkPrinter, error)
}

// Coordinator 订单摄入协调器
// 推送与轮询两条通道的唯一汇入口；去重依据是 orders 表
// cloud_order_id 的唯一索引，而不是进程内的锁，进程重启也不会破坏幂等
type Coordinator struct {
	orders     OrderStore
	jobs       JobStore
	printers   PrinterResolver
	deviceID   string
	maxRetries int
	logger     logger.Logger
}

// NewCoordinator 创建摄入协调器
func NewCoordinator(
	orders OrderStore,
	jobs JobStore,
	printers PrinterResolver,
	deviceID string,
	maxRetries int,
	log logger.Logger,
) *Coordinator {
	return &Coordinator{
		orders:     orders,
		jobs:       jobs,
		printers:   printers,
		deviceID:   deviceID,
		maxRetries: maxRetries,
		logger:     log,
	}
}

// Ingest 摄入一笔云端订单
// Duplicate 也算成功（幂等）；Rejected 只记录日志，不主动重试
func (c *Coordinator) Ingest(ctx context.Context, cloudOrder *model.CloudOrder) (Outcome, error) {
	if cloudOrder == nil || cloudOrder.OrderID == "" {
		c.logger.Warnf(ctx, "[Ingest] Rejected order without cloud order id")
		return Outcome{Code: Rejected, Reason: "missing order id"}, nil
	}

	ctx = logger.WithOrderID(ctx, cloudOrder.OrderID)

	// 先做一次便宜的存在性检查；真正的权威判定在 Insert 的唯一索引上
	exists, err := c.orders.ExistsByCloudID(ctx, cloudOrder.OrderID)
	if err != nil {
		return Outcome{}, err
	}
	if exists {
		c.logger.Debugf(ctx, "[Ingest] Duplicate order, skipping")
		return Outcome{Code: Duplicate, OrderID: cloudOrder.OrderID}, nil
	}

	order, items, addons := c.translate(cloudOrder)

	if err := c.orders.Insert(ctx, order, items, addons); err != nil {
		if errors.Is(err, mysql.ErrDuplicate) {
			// 另一条通道抢先写入，同样按幂等成功处理
			c.logger.Debugf(ctx, "[Ingest] Lost insert race, order already stored")
			return Outcome{Code: Duplicate, OrderID: cloudOrder.OrderID}, nil
		}
		return Outcome{}, err
	}

	c.logger.Infof(ctx, "[Ingest] Order created: %s (#%s), %d items", order.ID, order.OrderNo, len(items))

	if err := c.enqueuePrintJobs(ctx, order, items, addons); err != nil {
		// 订单已落库；打印任务生成失败不回滚摄入，留给人工重打
		c.logger.Errorf(ctx, "[Ingest] Failed to enqueue print jobs: %v", err)
	}

	return Outcome{Code: Created, OrderID: order.ID}, nil
}

// translate 把云端报文翻译为本地规范模型
func (c *Coordinator) translate(cloudOrder *model.CloudOrder) (*entity.LocalOrder, []entity.OrderItem, []entity.ItemAddon) {
	now := time.Now()

	order := &entity.LocalOrder{
		ID:             uuid.NewString(),
		CloudOrderID:   cloudOrder.OrderID,
		OrderNo:        cloudOrder.OrderNo,
		CustomerName:   cloudOrder.Customer.Name,
		CustomerPhone:  cloudOrder.Customer.Phone,
		OrderType:      normalizeOrderType(cloudOrder.OrderType),
		Subtotal:       cloudOrder.Subtotal.Value(),
		Tax:            cloudOrder.Tax.Value(),
		Discount:       cloudOrder.Discount.Value(),
		Total:          cloudOrder.Total.Value(),
		PaymentMethod:  cloudOrder.PaymentMethod,
		PaymentStatus:  cloudOrder.PaymentStatus,
		Status:         entity.OrderStatusNew,
		SyncStatus:     entity.SyncStatusSynced,
		CloudCreatedAt: parseCloudTime(cloudOrder.CreatedAt, now),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if raw, err := json.Marshal(cloudOrder); err == nil {
		order.RawData = datatypes.JSON(raw)
	}
	if order.OrderNo == "" {
		order.OrderNo = order.CloudOrderID
	}

	items := make([]entity.OrderItem, 0, len(cloudOrder.Items))
	addons := make([]entity.ItemAddon, 0)
	for _, ci := range cloudOrder.Items {
		qty := ci.Quantity.Value()
		if qty <= 0 {
			qty = 1
		}
		item := entity.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			Name:       ci.Name,
			Quantity:   qty,
			UnitPrice:  ci.Price.Value(),
			Note:       ci.Note,
			PrintGroup: ci.PrintGroup,
			CreatedAt:  now,
		}
		items = append(items, item)

		for _, mod := range ci.Modifiers {
			modQty := mod.Quantity.Value()
			if modQty <= 0 {
				modQty = 1
			}
			addons = append(addons, entity.ItemAddon{
				ID:       uuid.NewString(),
				ItemID:   item.ID,
				Name:     mod.Name,
				Price:    mod.Price.Value(),
				Quantity: modQty,
			})
		}
	}

	return order, items, addons
}

// Reprint 人工重打：重新渲染并入队
// jobType 为空时小票和厨房票都重打
func (c *Coordinator) Reprint(ctx context.Context, orderID string, jobType string) error {
	order, err := c.orders.GetByID(ctx, orderID)
	if errors.Is(err, mysql.ErrNotFound) {
		// 店员手里常常只有云端单号，本地 ID 查不到再按云端 ID 找一次
		order, err = c.orders.GetByCloudID(ctx, orderID)
	}
	if err != nil {
		return err
	}
	items, err := c.orders.ListItems(ctx, order.ID)
	if err != nil {
		return err
	}
	itemIDs := make([]string, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.ID)
	}
	addons, err := c.orders.ListAddons(ctx, itemIDs)
	if err != nil {
		return err
	}

	addonsByItem := make(map[string][]entity.ItemAddon)
	for _, a := range addons {
		addonsByItem[a.ItemID] = append(addonsByItem[a.ItemID], a)
	}

	ctx = logger.WithOrderID(ctx, order.CloudOrderID)

	if jobType == "" || jobType == entity.JobTypeKitchenTicket {
		grouped := make(map[string][]entity.OrderItem)
		for _, item := range items {
			grouped[item.PrintGroup] = append(grouped[item.PrintGroup], item)
		}
		for group, groupItems := range grouped {
			target, err := c.resolveKitchenPrinter(ctx, group)
			if err != nil {
				c.logger.Warnf(ctx, "[Ingest] No printer for print group %q, skipping reprint", group)
				continue
			}
			renderer := printer.NewRenderer(target.PaperWidth)
			payload := renderer.RenderKitchenTicket(order, groupItems, addonsByItem)
			if err := c.insertJob(ctx, order, target.ID, entity.JobTypeKitchenTicket, payload); err != nil {
				return err
			}
		}
	}

	if jobType == "" || jobType == entity.JobTypeReceipt {
		receiptPrinter, err := c.printers.GetByType(ctx, entity.PrinterTypeReceipt)
		if err != nil {
			return err
		}
		renderer := printer.NewRenderer(receiptPrinter.PaperWidth)
		payload := renderer.RenderReceipt(order, items, addonsByItem)
		if err := c.insertJob(ctx, order, receiptPrinter.ID, entity.JobTypeReceipt, payload); err != nil {
			return err
		}
	}

	c.logger.Infof(ctx, "[Ingest] Reprint enqueued for order %s", orderID)
	return nil
}

// enqueuePrintJobs 按打印分组路由厨房票，另发一张客户小票
// 路由在入队时定格；重试不会重新解析路由
func (c *Coordinator) enqueuePrintJobs(
	ctx context.Context,
	order *entity.LocalOrder,
	items []entity.OrderItem,
	addons []entity.ItemAddon,
) error {
	addonsByItem := make(map[string][]entity.ItemAddon)
	for _, a := range addons {
		addonsByItem[a.ItemID] = append(addonsByItem[a.ItemID], a)
	}

	// 厨房票：每个打印分组一张
	grouped := make(map[string][]entity.OrderItem)
	for _, item := range items {
		grouped[item.PrintGroup] = append(grouped[item.PrintGroup], item)
	}

	var firstErr error
	for group, groupItems := range grouped {
		target, err := c.resolveKitchenPrinter(ctx, group)
		if err != nil {
			c.logger.Warnf(ctx, "[Ingest] No printer for print group %q, skipping kitchen ticket", group)
			continue
		}

		renderer := printer.NewRenderer(target.PaperWidth)
		payload := renderer.RenderKitchenTicket(order, groupItems, addonsByItem)
		if err := c.insertJob(ctx, order, target.ID, entity.JobTypeKitchenTicket, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// 客户小票：配置了小票机才打
	if receiptPrinter, err := c.printers.GetByType(ctx, entity.PrinterTypeReceipt); err == nil {
		renderer := printer.NewRenderer(receiptPrinter.PaperWidth)
		payload := renderer.RenderReceipt(order, items, addonsByItem)
		if err := c.insertJob(ctx, order, receiptPrinter.ID, entity.JobTypeReceipt, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	} else if !errors.Is(err, mysql.ErrNotFound) {
		c.logger.Errorf(ctx, "[Ingest] Failed to resolve receipt printer: %v", err)
	}

	return firstErr
}

// resolveKitchenPrinter 分组打印机缺失时回落到默认厨房打印机
func (c *Coordinator) resolveKitchenPrinter(ctx context.Context, group string) (*entity.NetworkPrinter, error) {
	if group != "" {
		if p, err := c.printers.GetByPrintGroup(ctx, group); err == nil {
			return p, nil
		}
	}
	return c.printers.GetByType(ctx, entity.PrinterTypeKitchen)
}

// insertJob 插入打印任务
func (c *Coordinator) insertJob(ctx context.Context, order *entity.LocalOrder, printerID, jobType string, payload []byte) error {
	job := &entity.PrintJob{
		ID:           uuid.NewString(),
		PrinterID:    printerID,
		OrderID:      order.ID,
		CloudOrderID: order.CloudOrderID,
		JobType:      jobType,
		Payload:      payload,
		Status:       entity.JobStatusPending,
		MaxRetries:   c.maxRetries,
		CreatedAt:    time.Now(),
	}
	return c.jobs.Insert(ctx, job)
}

// normalizeOrderType 归一化订单类型
func normalizeOrderType(t string) string {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(t), "-", "_")) {
	case "PICKUP", "TAKEAWAY":
		return entity.OrderTypePickup
	case "DELIVERY":
		return entity.OrderTypeDelivery
	case "DINE_IN", "DINEIN", "EAT_IN":
		return entity.OrderTypeDineIn
	default:
		return entity.OrderTypePickup
	}
}

// parseCloudTime 解析云端时间戳，失败时取 fallback
func parseCloudTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return fallback
}
