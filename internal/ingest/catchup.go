package ingest

import (
	"context"
	"time"

	"github.com/gqurishi/POS-in-NET-sub004/internal/events"
	"github.com/gqurishi/POS-in-NET-sub004/internal/model"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// PullClient 补拉同步需要的云端调用
type PullClient interface {
	PullOrders(ctx context.Context, since time.Time) (*model.PullOrdersResponse, error)
}

// Ingestor 摄入入口（真实实现是 Coordinator）
type Ingestor interface {
	Ingest(ctx context.Context, cloudOrder *model.CloudOrder) (Outcome, error)
}

// CatchUp 重连补拉
// 订阅推送通道的连接事件；每次（重新）连上都对当天窗口做一次
// 全量补拉，推送断线期间漏掉的订单由此闭合，不留缺口
type CatchUp struct {
	connCh      <-chan events.ConnectionEvent
	client      PullClient
	coordinator Ingestor
	logger      logger.Logger
}

// NewCatchUp 创建补拉订阅者
// 订阅在构造时完成：Run 启动前发生的连接事件不会丢
func NewCatchUp(bus *events.Bus, client PullClient, coordinator Ingestor, log logger.Logger) *CatchUp {
	return &CatchUp{
		connCh:      bus.SubscribeConnection(),
		client:      client,
		coordinator: coordinator,
		logger:      log,
	}
}

// Name 实现 worker.Runner
func (c *CatchUp) Name() string {
	return "catch-up"
}

// Run 启动补拉订阅循环
func (c *CatchUp) Run(ctx context.Context) {
	ctx = logger.WithWorker(ctx, c.Name())
	c.logger.Infof(ctx, "[CatchUp] Subscribed to connection events")

	for {
		select {
		case <-ctx.Done():
			c.logger.Infof(ctx, "[CatchUp] Stopped")
			return
		case ev := <-c.connCh:
			if !ev.Connected {
				continue
			}
			c.logger.Infof(ctx, "[CatchUp] Push channel connected, running catch-up sync")
			c.Sync(ctx)
		}
	}
}

// Sync 对当天窗口做一次补拉
func (c *CatchUp) Sync(ctx context.Context) {
	since := midnight(time.Now())
	resp, err := c.client.PullOrders(ctx, since)
	if err != nil {
		c.logger.Warnf(ctx, "[CatchUp] Pull failed: %v", err)
		return
	}

	created := 0
	for i := range resp.Orders {
		outcome, err := c.coordinator.Ingest(ctx, &resp.Orders[i])
		if err != nil {
			c.logger.Errorf(ctx, "[CatchUp] Ingest failed: %v", err)
			continue
		}
		if outcome.Code == Created {
			created++
		}
	}
	c.logger.Infof(ctx, "[CatchUp] Sync done: %d orders pulled, %d new", len(resp.Orders), created)
}

// midnight 当天零点
func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
