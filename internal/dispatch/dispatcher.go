package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
	"github.com/gqurishi/POS-in-NET-sub004/internal/events"
	"github.com/gqurishi/POS-in-NET-sub004/internal/printer"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

// JobStore 调度循环需要的任务存储操作
// 认领必须是存储层的条件更新：两个调度周期重叠时一个任务只被一方拿到
type JobStore interface {
	ClaimPending(ctx context.Context, limit int) ([]entity.PrintJob, error)
	ReleaseForRetry(ctx context.Context, id string, retryCount int, lastError string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PrinterStore 打印机读取
type PrinterStore interface {
	GetByID(ctx context.Context, id string) (*entity.NetworkPrinter, error)
}

// AckStore 回执写入
type AckStore interface {
	Insert(ctx context.Context, ack *entity.PendingAck) error
}

// Dispatcher 打印调度循环
// 固定 tick 认领 Pending 任务、检查目标打印机健康、尝试传输。
// 打印机故障通常是二元的通电/断电，所以重试节奏就是 tick 本身，
// 不额外做指数退避（这是沿用原系统的刻意取舍，勿随手"修复"）
type Dispatcher struct {
	jobs       JobStore
	printers   PrinterStore
	acks       AckStore
	transport  printer.Transport
	health     <-chan events.PrinterHealthEvent
	deviceID   string
	tick       time.Duration
	claimLimit int
	staleAfter time.Duration
	logger     logger.Logger
}

// NewDispatcher 创建调度器
// 订阅在构造时完成：Run 启动前发生的健康事件不会丢
func NewDispatcher(
	jobs JobStore,
	printers PrinterStore,
	acks AckStore,
	transport printer.Transport,
	bus *events.Bus,
	deviceID string,
	tick time.Duration,
	claimLimit int,
	staleAfter time.Duration,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		jobs:       jobs,
		printers:   printers,
		acks:       acks,
		transport:  transport,
		health:     bus.SubscribePrinterHealth(),
		deviceID:   deviceID,
		tick:       tick,
		claimLimit: claimLimit,
		staleAfter: staleAfter,
		logger:     log,
	}
}

// Name 实现 worker.Runner
func (d *Dispatcher) Name() string {
	return "print-dispatch"
}

// Run 启动调度循环
func (d *Dispatcher) Run(ctx context.Context) {
	ctx = logger.WithWorker(ctx, d.Name())
	d.logger.Infof(ctx, "[Dispatch] Started, tick: %v", d.tick)

	// 上次进程异常退出遗留的 PRINTING 任务先回收再开始派发
	if n, err := d.jobs.ReclaimStale(ctx, d.staleAfter); err != nil {
		d.logger.Errorf(ctx, "[Dispatch] Failed to reclaim stale jobs: %v", err)
	} else if n > 0 {
		d.logger.Infof(ctx, "[Dispatch] Reclaimed %d stale jobs", n)
	}

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Infof(ctx, "[Dispatch] Stopped")
			return
		case <-ticker.C:
			d.ProcessTick(ctx)
		case ev := <-d.health:
			// 打印机恢复上线立刻补一轮派发，不等下一个 tick
			if ev.Online {
				d.logger.Infof(ctx, "[Dispatch] Printer %s back online, dispatching immediately", ev.Name)
				d.ProcessTick(ctx)
			}
		}
	}
}

// ProcessTick 处理一个调度周期
func (d *Dispatcher) ProcessTick(ctx context.Context) {
	jobs, err := d.jobs.ClaimPending(ctx, d.claimLimit)
	if err != nil {
		d.logger.Errorf(ctx, "[Dispatch] Failed to claim jobs: %v", err)
		return
	}

	for i := range jobs {
		if ctx.Err() != nil {
			return
		}
		d.processJob(ctx, &jobs[i])
	}
}

// processJob 处理单个已认领任务
func (d *Dispatcher) processJob(ctx context.Context, job *entity.PrintJob) {
	jctx := logger.WithPrinterID(logger.WithOrderID(ctx, job.CloudOrderID), job.PrinterID)

	target, err := d.printers.GetByID(ctx, job.PrinterID)
	if err != nil {
		d.failAttempt(jctx, job, "printer not found: "+job.PrinterID)
		return
	}

	// 打印机离线：放回 Pending 等下个 tick，但离线也计入重试次数，
	// 否则一直不恢复的打印机会让任务永远悬挂、云端永远收不到失败回执
	if !target.Online {
		d.logger.Debugf(jctx, "[Dispatch] Printer %s offline, job %s deferred", target.Name, job.ID)
		d.failAttempt(jctx, job, "printer offline: "+target.Name)
		return
	}

	if err := d.transport.Print(ctx, target.Addr(), job.Payload); err != nil {
		d.failAttempt(jctx, job, err.Error())
		return
	}

	if err := d.jobs.MarkCompleted(ctx, job.ID); err != nil {
		d.logger.Errorf(jctx, "[Dispatch] Failed to mark job completed: %v", err)
		return
	}
	d.logger.Infof(jctx, "[Dispatch] Job %s printed on %s", job.ID, target.Name)

	d.createAck(jctx, job, entity.AckOutcomePrinted, "")
}

// failAttempt 传输失败：未到上限放回 Pending，到上限进入终态 Failed 并产生失败回执
func (d *Dispatcher) failAttempt(ctx context.Context, job *entity.PrintJob, reason string) {
	retryCount := job.RetryCount + 1

	if retryCount < job.MaxRetries {
		d.logger.Warnf(ctx, "[Dispatch] Job %s attempt %d/%d failed: %s", job.ID, retryCount, job.MaxRetries, reason)
		if err := d.jobs.ReleaseForRetry(ctx, job.ID, retryCount, reason); err != nil {
			d.logger.Errorf(ctx, "[Dispatch] Failed to release job for retry: %v", err)
		}
		return
	}

	d.logger.Errorf(ctx, "[Dispatch] Job %s exhausted retries, marking failed: %s", job.ID, reason)
	if err := d.jobs.MarkFailed(ctx, job.ID, retryCount, reason); err != nil {
		d.logger.Errorf(ctx, "[Dispatch] Failed to mark job failed: %v", err)
		return
	}

	// 云端要知道没打出来，而不是悄悄丢掉
	d.createAck(ctx, job, entity.AckOutcomeFailed, reason)
}

// createAck 云端订单衍生的任务进入终态时创建回执
func (d *Dispatcher) createAck(ctx context.Context, job *entity.PrintJob, outcome, reason string) {
	if job.CloudOrderID == "" {
		return
	}

	now := time.Now()
	ack := &entity.PendingAck{
		ID:           uuid.NewString(),
		CloudOrderID: job.CloudOrderID,
		Outcome:      outcome,
		Reason:       reason,
		DeviceID:     d.deviceID,
		CreatedAt:    now,
	}
	if outcome == entity.AckOutcomePrinted {
		ack.PrintedAt = &now
	}

	if err := d.acks.Insert(ctx, ack); err != nil {
		d.logger.Errorf(ctx, "[Dispatch] Failed to create pending ack: %v", err)
	}
}
