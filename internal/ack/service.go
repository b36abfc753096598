package ack

import (
	"context"
	"time"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
	"github.com/gqurishi/POS-in-NET-sub004/internal/events"
	"github.com/gqurishi/POS-in-NET-sub004/internal/model"
	infraredis "github.com/gqurishi/POS-in-NET-sub004/pkg/infra/redis"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// Store 回执存储操作
type Store interface {
	List(ctx context.Context) ([]entity.PendingAck, error)
	Delete(ctx context.Context, id string) error
	BumpRetry(ctx context.Context, id string) error
}

// Poster 云端回执上报
type Poster interface {
	PostAck(ctx context.Context, ack model.OrderAckRequest) error
	Healthy() bool
}

// OfflineEnqueuer 网络不可达时的离线队列入口
type OfflineEnqueuer interface {
	EnqueueOrderAck(ctx context.Context, ack model.OrderAckRequest) error
}

// Service 回执重试服务
// 固定间隔扫描 PendingAck：上报成功删行，失败累计重试次数等下轮。
// 回执与打印任务不同，没有重试上限——迟到的回执只是延迟云端可见性，
// 无限重试是安全的。网络已知不可达时改走离线队列，不空耗请求
type Service struct {
	store     Store
	poster    Poster
	offline   OfflineEnqueuer
	publisher events.Publisher
	deviceID  string
	interval  time.Duration
	logger    logger.Logger
}

// NewService 创建回执重试服务
func NewService(
	store Store,
	poster Poster,
	offline OfflineEnqueuer,
	publisher events.Publisher,
	deviceID string,
	interval time.Duration,
	log logger.Logger,
) *Service {
	return &Service{
		store:     store,
		poster:    poster,
		offline:   offline,
		publisher: publisher,
		deviceID:  deviceID,
		interval:  interval,
		logger:    log,
	}
}

// Name 实现 worker.Runner
func (s *Service) Name() string {
	return "ack-retry"
}

// Run 启动重试循环
func (s *Service) Run(ctx context.Context) {
	ctx = logger.WithWorker(ctx, s.Name())
	s.logger.Infof(ctx, "[Ack] Started, interval: %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infof(ctx, "[Ack] Stopped")
			return
		case <-ticker.C:
			s.ProcessCycle(ctx)
		}
	}
}

// ProcessCycle 处理一轮回执上报
func (s *Service) ProcessCycle(ctx context.Context) {
	acks, err := s.store.List(ctx)
	if err != nil {
		s.logger.Errorf(ctx, "[Ack] Failed to list pending acks: %v", err)
		return
	}
	if len(acks) == 0 {
		return
	}

	for i := range acks {
		if ctx.Err() != nil {
			return
		}
		s.processOne(ctx, &acks[i])
	}
}

// processOne 上报单条回执
func (s *Service) processOne(ctx context.Context, pending *entity.PendingAck) {
	actx := logger.WithOrderID(ctx, pending.CloudOrderID)
	req := toRequest(pending, s.deviceID)

	// 网络已知不可达：转入离线队列，所有权随之转移
	if !s.poster.Healthy() {
		if err := s.offline.EnqueueOrderAck(ctx, req); err != nil {
			s.logger.Errorf(actx, "[Ack] Failed to move ack to offline queue: %v", err)
			return
		}
		if err := s.store.Delete(ctx, pending.ID); err != nil {
			s.logger.Errorf(actx, "[Ack] Failed to delete ack after offload: %v", err)
			return
		}
		s.logger.Infof(actx, "[Ack] Network down, ack moved to offline queue")
		return
	}

	if err := s.poster.PostAck(ctx, req); err != nil {
		s.logger.Warnf(actx, "[Ack] Post failed (retry %d): %v", pending.RetryCount+1, err)
		if err := s.store.BumpRetry(ctx, pending.ID); err != nil {
			s.logger.Errorf(actx, "[Ack] Failed to bump retry count: %v", err)
		}
		return
	}

	if err := s.store.Delete(ctx, pending.ID); err != nil {
		s.logger.Errorf(actx, "[Ack] Failed to delete confirmed ack: %v", err)
		return
	}
	s.logger.Infof(actx, "[Ack] Acknowledged order %s (%s)", pending.CloudOrderID, pending.Outcome)

	if err := s.publisher.Publish(ctx, infraredis.ChannelAckResult, req); err != nil {
		s.logger.Warnf(actx, "[Ack] Failed to publish ack event: %v", err)
	}
}

// toRequest 组装上报请求
func toRequest(pending *entity.PendingAck, deviceID string) model.OrderAckRequest {
	req := model.OrderAckRequest{
		OrderID:  pending.CloudOrderID,
		Status:   pending.Outcome,
		Reason:   pending.Reason,
		DeviceID: deviceID,
	}
	if pending.PrintedAt != nil {
		req.PrintedAt = pending.PrintedAt.Format(time.RFC3339)
	}
	return req
}
