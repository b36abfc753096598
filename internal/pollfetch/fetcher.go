package pollfetch

import (
	"context"
	"time"

	"github.com/gqurishi/POS-in-NET-sub004/internal/ingest"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// Fetcher 轮询兜底拉取器
// 与推送通道无关、始终活跃：两条通道是刻意并跑的竞争关系，
// 不是主备切换，最坏延迟由轮询间隔兜底。失败不退避，下个 tick 重来
type Fetcher struct {
	client      ingest.PullClient
	coordinator ingest.Ingestor
	interval    time.Duration
	logger      logger.Logger
}

// NewFetcher 创建拉取器
func NewFetcher(
	client ingest.PullClient,
	coordinator ingest.Ingestor,
	interval time.Duration,
	log logger.Logger,
) *Fetcher {
	return &Fetcher{
		client:      client,
		coordinator: coordinator,
		interval:    interval,
		logger:      log,
	}
}

// Name 实现 worker.Runner
func (f *Fetcher) Name() string {
	return "poll-fetcher"
}

// Run 启动轮询循环
func (f *Fetcher) Run(ctx context.Context) {
	ctx = logger.WithWorker(ctx, f.Name())
	f.logger.Infof(ctx, "[Poller] Started, interval: %v", f.interval)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Infof(ctx, "[Poller] Stopped")
			return
		case <-ticker.C:
			f.FetchOnce(ctx)
		}
	}
}

// FetchOnce 执行一次拉取；每笔订单交给协调器（重复投递由去重吸收）
func (f *Fetcher) FetchOnce(ctx context.Context) {
	resp, err := f.client.PullOrders(ctx, time.Time{})
	if err != nil {
		f.logger.Warnf(ctx, "[Poller] Pull failed: %v", err)
		return
	}

	if !resp.Success {
		f.logger.Warnf(ctx, "[Poller] Server reported failure")
		return
	}

	for i := range resp.Orders {
		if _, err := f.coordinator.Ingest(ctx, &resp.Orders[i]); err != nil {
			f.logger.Errorf(ctx, "[Poller] Ingest failed for %s: %v", resp.Orders[i].OrderID, err)
		}
	}

	if len(resp.Orders) > 0 {
		f.logger.Debugf(ctx, "[Poller] Pulled %d orders", len(resp.Orders))
	}
}
